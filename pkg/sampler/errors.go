package sampler

import "errors"

var (
	// ErrPollTimeout reports a poll that exceeded its deadline. The tick
	// is skipped; the sampler stays usable.
	ErrPollTimeout = errors.New("poll timed out")
	// ErrSourceUnreachable reports a transient transport failure.
	ErrSourceUnreachable = errors.New("source unreachable")

	ErrUnknownKind = errors.New("unknown sampler kind")

	errNameRequired     = errors.New("sampler name is required")
	errEndpointRequired = errors.New("sampler endpoint is required")
	errSSHConfigMissing = errors.New("ssh configuration is required for stats-socket samplers")
	errSSHAuthMissing   = errors.New("ssh key file or password is required")
	errEmptyStats       = errors.New("empty stats response")
	errMalformedStats   = errors.New("malformed stats response")
	errUnexpectedStatus = errors.New("unexpected response status")
)
