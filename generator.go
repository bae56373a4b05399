package coz

import "iter"

// GenPromise is the promise of a generator body: a single value slot plus an
// availability flag, written by the body at each yield and read by the
// driver between resumptions.
type GenPromise[T any] struct {
	value T
	ok    bool
}

// Set stores the yielded value. Call it from a Yield step.
func (p *GenPromise[T]) Set(v T) {
	p.value = v
	p.ok = true
}

// Finalize clears the value slot when the frame ends, so a completed
// generator can never hand out stale data.
func (p *GenPromise[T]) Finalize() {
	var zero T
	p.value = zero
	p.ok = false
}

// Generator drives a frame whose promise is a GenPromise: a pull iterator
// over the values the body yields.
//
// A generator abandoned before completion must be released with Stop;
// resources held at its suspended point are not freed on mere disuse.
type Generator[T, S any] struct {
	c       *Coroutine[S, GenPromise[T]]
	started bool
}

// NewGenerator constructs a generator around body with the given initial
// parameters. The frame is not started until the first call to Next.
func NewGenerator[T, S any](body *Body[S, GenPromise[T]], params S) *Generator[T, S] {
	return &Generator[T, S]{c: body.New(params)}
}

// Next advances the generator to its next yield and reports whether a value
// is available. The first call starts the frame; once Next has returned
// false it keeps returning false.
func (g *Generator[T, S]) Next() bool {
	if g.started && g.c.Done() {
		return false
	}
	g.c.Promise().ok = false
	if g.started {
		g.c.Resume()
	} else {
		g.started = true
		g.c.Start()
	}
	return g.c.Promise().ok
}

// Value returns the value produced by the last call to Next. Calling Value
// before the first Next, or after Next reported false, is a usage error and
// panics.
func (g *Generator[T, S]) Value() T {
	if !g.started {
		panic("coz: generator value read before the first Next")
	}
	p := g.c.Promise()
	if !p.ok {
		panic("coz: generator value read after exhaustion")
	}
	return p.value
}

// Done reports whether the underlying frame completed.
func (g *Generator[T, S]) Done() bool { return g.started && g.c.Done() }

// Stop destroys a generator that was started but not driven to completion,
// releasing whatever its suspended point holds. Stopping a completed or
// never-started generator has no effect.
func (g *Generator[T, S]) Stop() {
	if !g.started || g.c.Done() {
		return
	}
	g.c.Destroy()
}

// Seq adapts the generator to range-over-func iteration. Breaking out of
// the range stops the generator.
func (g *Generator[T, S]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer g.Stop()
		for g.Next() {
			if !yield(g.Value()) {
				return
			}
		}
	}
}
