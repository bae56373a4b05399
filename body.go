package coz

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Awaiter is the protocol of an awaited operation with result type T.
//
// Ready reports whether the result is already available; when it is, the
// frame continues synchronously and never returns to its caller. Suspend
// runs when the operation is not ready: it receives the frame handle so an
// external executor can resume the frame later, and may cancel the
// suspension by returning false, in which case execution also continues
// synchronously. Resolve produces the result once the frame continues past
// the suspension point.
type Awaiter[T any] interface {
	Ready() bool
	Suspend(Handle) bool
	Resolve() T
}

// transfer is the outcome of one step phase.
type transfer struct {
	kind transferKind
	to   Label
}

type transferKind int8

const (
	xNext transferKind = iota
	xGoto
	xSuspend
	xFinalize
)

// step is one compiled unit of a body. enter runs when forward flow reaches
// the step. resume and teardown exist only on steps a frame can suspend at:
// resume runs when the driver re-enters the frame there, teardown when the
// frame is destroyed there.
type step[S, P any] struct {
	enter    func(*Coroutine[S, P]) transfer
	resume   func(*Coroutine[S, P]) transfer
	teardown func(*Coroutine[S, P]) transfer
	handler  bool
}

// Body is the definition of a resumable function: its compiled steps over a
// state type S and a promise type P, and the layout of the scratch storage
// shared by its suspension points. A Body is built once, then reused by any
// number of frames; it becomes immutable when the first frame is
// constructed from it.
type Body[S, P any] struct {
	steps    []step[S, P]
	layout   SizeAlign
	points   int
	sealOnce sync.Once
	sealed   atomic.Bool
}

// NewBody returns an empty body builder for state type S and promise type P.
func NewBody[S, P any]() *Body[S, P] {
	return &Body[S, P]{}
}

// Layout returns the size and alignment of the scratch storage shared by
// the body's suspension points: the component-wise maximum over every
// awaited temporary type, fixed when the body definition is complete. A
// body that never awaits has the zero layout and its frames allocate no
// scratch storage.
func (b *Body[S, P]) Layout() SizeAlign { return b.layout }

// Points returns the number of suspension points the body declares.
func (b *Body[S, P]) Points() int { return b.points }

// Mark returns the label of the next step to be declared. Declare a loop
// head with Mark before adding its first step, or assign a Mark to a
// captured Label variable after the fact for forward jumps.
func (b *Body[S, P]) Mark() Label { return Label(len(b.steps)) }

func (b *Body[S, P]) add(s step[S, P]) Label {
	if b.sealed.Load() {
		panic("coz: body modified after a frame was constructed")
	}
	b.steps = append(b.steps, s)
	return Label(len(b.steps) - 1)
}

// seal freezes the body. Frames may be constructed from one body by many
// goroutines at once, so sealing must be race-free.
func (b *Body[S, P]) seal() {
	b.sealOnce.Do(func() {
		for i := range b.steps {
			if b.steps[i].enter == nil {
				panic("coz: Try without a matching Catch")
			}
		}
		b.sealed.Store(true)
	})
}

// Block appends straight-line logic. fn returns Next to fall through to the
// following step, Return to complete the body, or a step label to jump to.
func (b *Body[S, P]) Block(fn func(*S, *P) Label) Label {
	return b.add(step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			return blockTransfer(fn(&c.state, &c.prom))
		},
	})
}

func blockTransfer(l Label) transfer {
	switch {
	case l == Next:
		return transfer{kind: xNext}
	case l == Return:
		return transfer{kind: xFinalize}
	case l < 0:
		panic("coz: step returned an invalid label")
	default:
		return transfer{kind: xGoto, to: l}
	}
}

// Yield appends a suspension point that stores a value directly into the
// promise and suspends unconditionally; it is never polled for readiness
// and uses no scratch storage. fn runs right before control returns to the
// caller, and the value it stores stays readable until the next resumption.
func (b *Body[S, P]) Yield(fn func(*S, *P)) Label {
	lbl := Label(len(b.steps))
	b.points++
	return b.add(step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			fn(&c.state, &c.prom)
			c.hdr.next = lbl
			return transfer{kind: xSuspend}
		},
		resume: func(*Coroutine[S, P]) transfer {
			return transfer{kind: xNext}
		},
		teardown: func(*Coroutine[S, P]) transfer {
			return transfer{kind: xFinalize}
		},
	})
}

// Await appends a suspension point to b. init constructs the awaited
// operation; its concrete type contributes to the body's scratch layout.
// then consumes the resolved result once the frame continues past the
// point, and directs the flow like a Block function.
//
// The operation lives in the frame's scratch cell from construction until
// it is resolved on the resumption path, or released unresolved on the
// teardown path. Either way it is disposed exactly once.
func Await[S, P, T any, A Awaiter[T]](b *Body[S, P], init func(*S, *P) A, then func(*S, *P, T) Label) Label {
	b.layout = b.layout.Unite(sizeAlignOf(reflect.TypeFor[A]()))
	b.points++
	lbl := Label(len(b.steps))

	resume := func(c *Coroutine[S, P]) transfer {
		aw := c.scr.take().(A)
		var res T
		func() {
			defer disposeValue(aw)
			res = aw.Resolve()
		}()
		return blockTransfer(then(&c.state, &c.prom, res))
	}

	return b.add(step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			aw := init(&c.state, &c.prom)
			c.scr.set(aw)
			// The counter advances before the readiness check, so a failure
			// raised past this point unwinds a frame that already looks
			// suspended here.
			c.hdr.next = lbl
			if aw.Ready() {
				return resume(c)
			}
			if aw.Suspend(c.Handle()) {
				return transfer{kind: xSuspend}
			}
			return resume(c)
		},
		resume: resume,
		teardown: func(c *Coroutine[S, P]) transfer {
			c.scr.dispose()
			return transfer{kind: xFinalize}
		},
	})
}

// Region identifies a protected region opened by Try and closed by the
// matching Catch.
type Region struct {
	try int
}

// Try opens a protected region: a failure raised by any step between Try
// and the matching Catch transfers control to the Catch handler. Regions
// nest; entering one saves the previous handler label and leaving it, on
// either path, restores it. Every Try must be closed by a Catch before the
// body is used.
func (b *Body[S, P]) Try() Region {
	idx := len(b.steps)
	b.add(step[S, P]{})
	return Region{try: idx}
}

// Catch closes a protected region and installs its failure handler. The
// handler receives the captured failure and directs the flow like a Block
// function. On normal exit from the region the handler is skipped.
func (b *Body[S, P]) Catch(r Region, handler func(*S, *P, error) Label) Label {
	exit := Label(len(b.steps))
	catch := exit + 1

	// Normal exit from the region: restore the saved handler label and
	// step over the handler.
	b.add(step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			c.popEH()
			return transfer{kind: xGoto, to: catch + 1}
		},
	})
	b.add(step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			c.popEH()
			return blockTransfer(handler(&c.state, &c.prom, c.takeFailure()))
		},
		handler: true,
	})

	// The region entry can only be compiled now that the handler label is
	// known.
	b.steps[r.try] = step[S, P]{
		enter: func(c *Coroutine[S, P]) transfer {
			c.pushEH(catch)
			return transfer{kind: xNext}
		},
	}
	return catch
}
