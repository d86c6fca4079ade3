package feed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFanOutPartialFailure matches a *PartialFailureError.
var ErrFanOutPartialFailure = errors.New("feed: fan-out partially failed")

// TargetError is the failure of appending to one stream.
type TargetError struct {
	Key string
	Err error
}

func (e TargetError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

func (e TargetError) Unwrap() error {
	return e.Err
}

// PartialFailureError reports the streams an activity could not be appended
// to. Every other target received the activity.
type PartialFailureError struct {
	ActivityID string
	Delivered  int
	Failed     []TargetError
}

func (e *PartialFailureError) Error() string {
	keys := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		keys[i] = f.Key
	}
	return fmt.Sprintf("feed: activity %s delivered to %d streams, failed for %d (%s)",
		e.ActivityID, e.Delivered, len(e.Failed), strings.Join(keys, ", "))
}

// Is matches ErrFanOutPartialFailure.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrFanOutPartialFailure
}

// Unwrap exposes the per-target errors.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}
