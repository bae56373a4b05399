// Package coz is a stackless coroutine runtime: it turns a function body,
// authored as explicit steps with marked suspension points, into a resumable
// state-machine object that can be started, resumed, made to yield values,
// await sub-operations, recover failures across suspension boundaries, and be
// torn down from any suspended point.
//
// A frame is one flat allocation, not a separate execution stack, and there
// is no scheduler: resumption is always an explicit call made by whoever
// holds the frame or a [Handle] to it. Execution is strictly single-threaded
// per frame; Start, Resume and Destroy must never run concurrently on the
// same frame.
package coz

import "go.uber.org/zap"

// Coroutine is one frame of a [Body]: the program-counter pair, the promise,
// the captured state and the shared scratch cell. A frame is exclusively
// owned by whoever constructed it; handles are non-owning references into
// it.
type Coroutine[S, P any] struct {
	hdr       header
	body      *Body[S, P]
	state     S
	prom      P
	scr       scratch
	ehSaves   []Label
	failure   error
	finalized bool
}

// New constructs a frame around the body with the given initial parameters.
// The promise is zero-constructed and the frame is not started. Constructing
// the first frame freezes the body definition.
func (b *Body[S, P]) New(params S) *Coroutine[S, P] {
	b.seal()
	return &Coroutine[S, P]{
		hdr:   header{next: labelUnstarted, eh: labelNone},
		body:  b,
		state: params,
	}
}

// Start begins execution: the program counter moves to the first step and
// the body runs until its first suspension or completion. Start panics if
// the frame was already started.
func (c *Coroutine[S, P]) Start() {
	if c.hdr.next != labelUnstarted {
		panic("coz: coroutine already started")
	}
	c.hdr.next = 0
	logger().Debug("coroutine start")
	c.invoke(modeEnter)
}

// Resume re-enters the body at its suspended point and runs it until the
// next suspension or completion. Resume panics if the frame is done or was
// never started.
func (c *Coroutine[S, P]) Resume() {
	switch c.hdr.next {
	case labelUnstarted:
		panic("coz: resume before start")
	case labelCompleted:
		panic("coz: resume after completion")
	}
	c.invoke(modeResume)
}

// Destroy forces the next body invocation onto the teardown branch of the
// currently suspended point: no forward logic runs, resources held by the
// suspended awaited operation are released, and the frame finalizes.
// Destroy panics if the frame is done or was never started, so it can be
// called at most once per frame.
func (c *Coroutine[S, P]) Destroy() {
	switch c.hdr.next {
	case labelUnstarted:
		panic("coz: destroy before start")
	case labelCompleted:
		panic("coz: destroy after completion")
	}
	logger().Debug("coroutine destroy", zap.Int("ip", int(c.hdr.next)))
	c.invoke(modeTeardown)
}

// Done reports whether the frame finished normally, reported an unhandled
// failure, or was destroyed.
func (c *Coroutine[S, P]) Done() bool { return c.hdr.next == labelCompleted }

// Promise returns the frame's promise. The promise is written by the body
// and read by the driver in strict alternation; it stays readable after the
// frame completes, until the owner releases the frame.
func (c *Coroutine[S, P]) Promise() *P { return &c.prom }

// Handle returns a type-erased, non-owning reference to the frame.
func (c *Coroutine[S, P]) Handle() Handle { return Handle{p: c} }

func (c *Coroutine[S, P]) resume()         { c.Resume() }
func (c *Coroutine[S, P]) destroy()        { c.Destroy() }
func (c *Coroutine[S, P]) header() *header { return &c.hdr }
func (c *Coroutine[S, P]) promise() any    { return &c.prom }

type invokeMode int8

const (
	modeEnter invokeMode = iota
	modeResume
	modeTeardown
)

// invoke runs the body once: from the current program counter to the next
// suspension or completion. A failure raised during the run is intercepted
// here, once per driving call: with an active handler the body re-enters at
// the handler label within the same call; without one the frame completes
// terminally and the failure reaches the driver through the promise. A
// failure raised on the teardown path is always terminal: Destroy runs no
// forward logic, so the handler never applies.
func (c *Coroutine[S, P]) invoke(mode invokeMode) {
	for {
		err := c.dispatch(mode)
		if err == nil {
			return
		}
		if mode == modeTeardown || c.hdr.eh == labelNone {
			c.hdr.next = labelCompleted
			logger().Debug("coroutine failed", zap.Error(err))
			defer c.finalize()
			c.reject(err)
			return
		}
		// Synchronous retry: the handler region runs immediately, within
		// the same Start/Resume/Destroy call, not on a later resumption.
		c.hdr.next = c.hdr.eh
		c.failure = err
		mode = modeEnter
	}
}

func (c *Coroutine[S, P]) dispatch(mode invokeMode) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = asFailure(v)
		}
	}()

	ip := c.hdr.next
	steps := c.body.steps
	for {
		if int(ip) == len(steps) {
			// Natural end of the body: deliver the implicit completion
			// signal, then finalize.
			c.hdr.next = labelCompleted
			if r, ok := any(&c.prom).(interface{ ReturnVoid() }); ok {
				r.ReturnVoid()
			}
			c.finalize()
			return nil
		}

		var t transfer
		switch st := &steps[ip]; mode {
		case modeResume:
			t = st.resume(c)
		case modeTeardown:
			t = st.teardown(c)
		default:
			t = st.enter(c)
		}
		mode = modeEnter

		switch t.kind {
		case xNext:
			ip++
		case xGoto:
			ip = t.to
		case xSuspend:
			logger().Debug("coroutine suspended", zap.Int("ip", int(c.hdr.next)))
			return nil
		case xFinalize:
			c.hdr.next = labelCompleted
			c.finalize()
			return nil
		}
	}
}

// finalize runs the guaranteed cleanup exactly once per frame, on every
// exit path: a still-live scratch value is disposed and the promise's
// Finalize hook runs if implemented.
func (c *Coroutine[S, P]) finalize() {
	if c.finalized {
		return
	}
	c.finalized = true
	c.scr.dispose()
	if f, ok := any(&c.prom).(interface{ Finalize() }); ok {
		f.Finalize()
	}
}

// reject delivers an unhandled failure to the driver: through the promise's
// Reject hook when implemented, otherwise by propagating out of the driving
// call.
func (c *Coroutine[S, P]) reject(err error) {
	if r, ok := any(&c.prom).(interface{ Reject(error) }); ok {
		r.Reject(err)
		return
	}
	panic(err)
}

func (c *Coroutine[S, P]) pushEH(catch Label) {
	c.ehSaves = append(c.ehSaves, c.hdr.eh)
	c.hdr.eh = catch
}

func (c *Coroutine[S, P]) popEH() {
	n := len(c.ehSaves) - 1
	c.hdr.eh = c.ehSaves[n]
	c.ehSaves = c.ehSaves[:n]
}

func (c *Coroutine[S, P]) takeFailure() error {
	err := c.failure
	c.failure = nil
	return err
}
