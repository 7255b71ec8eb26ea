package gpu

import "fmt"

// ErrUnsupportedHardware is returned by Init when the physical device does
// not expose the minimum feature set required by the traversal kernel and
// scene bakers (spec.md §4.2, §7). It is fatal for the session.
type ErrUnsupportedHardware struct {
	Missing []string
}

func (e *ErrUnsupportedHardware) Error() string {
	return fmt.Sprintf("gpu: device does not support required features: %v", e.Missing)
}

// ErrBindingMismatch is returned by UpdateBindings when a reflected layout
// binding has no matching user-supplied slot, or a supplied slot fails
// alignment/layout validation. It indicates a programmer error and is never
// a shader-compile-time condition.
type ErrBindingMismatch struct {
	Binding uint32
	Reason  string
}

func (e *ErrBindingMismatch) Error() string {
	return fmt.Sprintf("gpu: binding %d mismatch: %s", e.Binding, e.Reason)
}

// ErrHardcodedLimitReached is returned when a request exceeds a fixed
// bound; PushConstants returns it when data is larger than the pipeline's
// push-constant range.
type ErrHardcodedLimitReached struct {
	Limit string
	Value int
	Bound int
}

func (e *ErrHardcodedLimitReached) Error() string {
	return fmt.Sprintf("gpu: %s limit reached (%d > %d)", e.Limit, e.Value, e.Bound)
}
