package detector

import "errors"

// ErrRunNotCompleted reports an analysis request for a run that is
// still active or was aborted.
var ErrRunNotCompleted = errors.New("run is not completed")
