package coz

import (
	"fmt"
	"runtime/debug"
)

// Raise reports err as a failure of the executing body. If the innermost
// protected region has a handler, control transfers to it within the same
// driving call; otherwise the failure reaches the driver once, through the
// promise's Reject hook, and the frame becomes terminally done.
func Raise(err error) {
	panic(failure{err})
}

// failure marks a payload raised through Raise so the intercept does not
// wrap it a second time.
type failure struct{ err error }

// panicError carries a recovered panic payload together with the stack at
// the point of the panic.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("%v", p.value)
}

// ErrorWithStack returns the message followed by the stack captured when
// the panic occurred.
func (p *panicError) ErrorWithStack() string {
	return fmt.Sprintf("%v\n\n%s", p.value, p.stack)
}

func (p *panicError) Unwrap() error {
	err, ok := p.value.(error)
	if !ok {
		return nil
	}
	return err
}

func asFailure(v any) error {
	if f, ok := v.(failure); ok {
		return f.err
	}
	return &panicError{value: v, stack: debug.Stack()}
}
