package playback

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned by every operation on a disposed Playback.
var ErrDisposed = errors.New("playback is disposed")

// ConfigurationError reports an invalid setting such as a non-positive speed
// or a tick interval below MinInterval.
type ConfigurationError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

// SinkError wraps a failure returned by the output sink. The batch that hit
// it is aborted; events that were not yet due for sending stay queued.
type SinkError struct {
	Event RawEvent
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink rejected %s at %v: %v", e.Event.Message, e.Event.Time, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// LifecycleError reports an operation that is not valid for the current
// configuration or state, e.g. a manual tick without a manual tick source.
type LifecycleError struct {
	Op     string
	State  State
	Reason string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s in state %s: %s", e.Op, e.State, e.Reason)
}
