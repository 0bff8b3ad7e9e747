package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration decodes from either a quoted Go duration string or a JSON
// number of nanoseconds, and always encodes back to the string form.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %w", errBadDuration, err)
		}

		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %q", errBadDuration, s)
		}

		*d = Duration(parsed)

		return nil
	}

	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return fmt.Errorf("%w: %w", errBadDuration, err)
	}

	*d = Duration(ns)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
