package coz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type nopromise struct{}

// traceState collects the order of observable events so tests can assert
// what ran, and when, relative to the driving calls.
type traceState struct {
	events []string
}

func (s *traceState) mark(e string) Label {
	s.events = append(s.events, e)
	return Next
}

func TestZeroSuspensionPoints(t *testing.T) {
	b := NewBody[traceState, nopromise]()
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("a") })
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("b") })

	c := b.New(traceState{})
	require.False(t, c.Done())

	c.Start()
	require.True(t, c.Done())
	require.Equal(t, []string{"a", "b"}, c.state.events)
	require.True(t, b.Layout().IsZero())
	require.False(t, c.scr.live)
}

func TestResumeAdvancesOneSuspensionStep(t *testing.T) {
	b := NewBody[traceState, nopromise]()
	b.Yield(func(s *traceState, _ *nopromise) { s.mark("y0") })
	b.Yield(func(s *traceState, _ *nopromise) { s.mark("y1") })
	b.Yield(func(s *traceState, _ *nopromise) { s.mark("y2") })

	c := b.New(traceState{})
	c.Start()
	require.False(t, c.Done())
	require.Equal(t, []string{"y0"}, c.state.events)

	c.Resume()
	require.False(t, c.Done())
	require.Equal(t, []string{"y0", "y1"}, c.state.events)

	c.Resume()
	require.False(t, c.Done())

	c.Resume()
	require.True(t, c.Done())
	require.Equal(t, []string{"y0", "y1", "y2"}, c.state.events)
}

type readyAwait struct{ v int }

func (a readyAwait) Ready() bool         { return true }
func (a readyAwait) Suspend(Handle) bool { return true }
func (a readyAwait) Resolve() int        { return a.v }

func TestReadyAwaitNeverSuspends(t *testing.T) {
	b := NewBody[traceState, nopromise]()
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("before") })
	Await(b, func(s *traceState, _ *nopromise) readyAwait {
		s.mark("init")
		return readyAwait{v: 42}
	}, func(s *traceState, _ *nopromise, v int) Label {
		require.Equal(t, 42, v)
		return s.mark("resolved")
	})
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("after") })

	// A single Start drives the frame to completion: control never returns
	// to the caller between the ready await and the end of the body.
	c := b.New(traceState{})
	c.Start()
	require.True(t, c.Done())
	require.Equal(t, []string{"before", "init", "resolved", "after"}, c.state.events)
}

type externAwait struct {
	h *Handle
}

func (a externAwait) Ready() bool { return false }

func (a externAwait) Suspend(h Handle) bool {
	*a.h = h
	return true
}

func (a externAwait) Resolve() int { return 7 }

func TestExternalResumeThroughHandle(t *testing.T) {
	var h Handle
	b := NewBody[traceState, nopromise]()
	Await(b, func(s *traceState, _ *nopromise) externAwait {
		return externAwait{h: &h}
	}, func(s *traceState, _ *nopromise, v int) Label {
		require.Equal(t, 7, v)
		return s.mark("resolved")
	})

	c := b.New(traceState{})
	c.Start()
	require.False(t, c.Done())
	require.Empty(t, c.state.events)
	require.False(t, h.Done())

	h.Resume()
	require.True(t, c.Done())
	require.True(t, h.Done())
	require.Equal(t, []string{"resolved"}, c.state.events)
}

type cancelAwait struct{}

func (cancelAwait) Ready() bool         { return false }
func (cancelAwait) Suspend(Handle) bool { return false }
func (cancelAwait) Resolve() int        { return 1 }

func TestSuspendHookCancelsSuspension(t *testing.T) {
	b := NewBody[traceState, nopromise]()
	Await(b, func(*traceState, *nopromise) cancelAwait {
		return cancelAwait{}
	}, func(s *traceState, _ *nopromise, v int) Label {
		return s.mark("resolved")
	})

	c := b.New(traceState{})
	c.Start()
	require.True(t, c.Done())
	require.Equal(t, []string{"resolved"}, c.state.events)
}

type resourceAwait struct {
	released *int
}

func (a resourceAwait) Ready() bool         { return false }
func (a resourceAwait) Suspend(Handle) bool { return true }
func (a resourceAwait) Resolve() int        { return 0 }
func (a resourceAwait) Dispose()            { *a.released++ }

func TestDestroyReleasesSuspendedResource(t *testing.T) {
	released := 0
	b := NewBody[traceState, nopromise]()
	Await(b, func(*traceState, *nopromise) resourceAwait {
		return resourceAwait{released: &released}
	}, func(s *traceState, _ *nopromise, v int) Label {
		return s.mark("resolved")
	})
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("after") })

	c := b.New(traceState{})
	c.Start()
	require.False(t, c.Done())
	require.Equal(t, 0, released)

	c.Destroy()
	require.True(t, c.Done())
	require.Equal(t, 1, released)
	// Only the teardown branch ran: no forward logic past the point.
	require.Empty(t, c.state.events)
}

func TestResumedResourceReleasedOnce(t *testing.T) {
	released := 0
	b := NewBody[traceState, nopromise]()
	Await(b, func(*traceState, *nopromise) resourceAwait {
		return resourceAwait{released: &released}
	}, func(*traceState, *nopromise, int) Label {
		return Next
	})

	c := b.New(traceState{})
	c.Start()
	c.Resume()
	require.True(t, c.Done())
	require.Equal(t, 1, released)
}

func TestMisuseIsReported(t *testing.T) {
	newSuspended := func() *Coroutine[traceState, nopromise] {
		b := NewBody[traceState, nopromise]()
		b.Yield(func(*traceState, *nopromise) {})
		c := b.New(traceState{})
		c.Start()
		return c
	}
	newDone := func() *Coroutine[traceState, nopromise] {
		c := newSuspended()
		c.Resume()
		return c
	}

	t.Run("start twice", func(t *testing.T) {
		c := newSuspended()
		require.PanicsWithValue(t, "coz: coroutine already started", c.Start)
	})
	t.Run("resume before start", func(t *testing.T) {
		b := NewBody[traceState, nopromise]()
		c := b.New(traceState{})
		require.PanicsWithValue(t, "coz: resume before start", c.Resume)
	})
	t.Run("resume after completion", func(t *testing.T) {
		c := newDone()
		require.PanicsWithValue(t, "coz: resume after completion", c.Resume)
	})
	t.Run("destroy before start", func(t *testing.T) {
		b := NewBody[traceState, nopromise]()
		c := b.New(traceState{})
		require.PanicsWithValue(t, "coz: destroy before start", c.Destroy)
	})
	t.Run("destroy after completion", func(t *testing.T) {
		c := newDone()
		require.PanicsWithValue(t, "coz: destroy after completion", c.Destroy)
	})
	t.Run("double destroy", func(t *testing.T) {
		c := newSuspended()
		c.Destroy()
		require.PanicsWithValue(t, "coz: destroy after completion", c.Destroy)
	})
}

func TestSharedBodyConcurrentFrames(t *testing.T) {
	// Sealing happens on first frame construction, and a body may be shared
	// across goroutines, so constructing frames concurrently must be safe.
	b := NewBody[traceState, nopromise]()
	b.Yield(func(*traceState, *nopromise) {})
	b.Block(func(s *traceState, _ *nopromise) Label { return s.mark("done") })

	var group errgroup.Group
	for range 16 {
		group.Go(func() error {
			c := b.New(traceState{})
			c.Start()
			c.Resume()
			if !c.Done() {
				return errors.New("frame did not complete")
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.PanicsWithValue(t, "coz: body modified after a frame was constructed", func() {
		b.Yield(func(*traceState, *nopromise) {})
	})
}

func TestHandlesDriveHeterogeneousFrames(t *testing.T) {
	gen := NewGenerator[int, span](rangeBody(), span{i: 0, e: 2})
	gen.Next()

	b := NewBody[traceState, nopromise]()
	b.Yield(func(*traceState, *nopromise) {})
	c := b.New(traceState{})
	c.Start()

	handles := []Handle{gen.c.Handle(), c.Handle()}
	for _, h := range handles {
		require.False(t, h.Done())
	}
	for _, h := range handles {
		for !h.Done() {
			h.Resume()
		}
	}
	require.True(t, gen.c.Done())
	require.True(t, c.Done())
}

func TestPromiseOf(t *testing.T) {
	gen := NewGenerator[int, span](rangeBody(), span{i: 0, e: 3})
	gen.Next()

	h := gen.c.Handle()
	p := PromiseOf[GenPromise[int]](h)
	require.Equal(t, 0, p.value)

	require.Panics(t, func() {
		PromiseOf[nopromise](h)
	})
}
