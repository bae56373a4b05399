package coz

import "fmt"

// header is the program-counter pair shared by every frame: the resume
// point and the entry of the innermost active failure handler.
type header struct {
	next Label
	eh   Label
}

// proto is the common frame ABI: the two operations every concrete frame
// type binds, plus access to the shared header and the promise. Handles
// reach frames of heterogeneous concrete types through this interface only.
type proto interface {
	resume()
	destroy()
	header() *header
	promise() any
}

// Handle is a non-owning, type-erased reference to a frame. Handles let a
// container of heterogeneous frames be driven uniformly, and let awaited
// operations register a frame for later external resumption. A Handle does
// not keep its frame valid: using one after the owner released the frame is
// a usage error.
type Handle struct {
	p proto
}

// Resume re-enters the frame's body at its suspended point. See
// [Coroutine.Resume] for the preconditions.
func (h Handle) Resume() { h.p.resume() }

// Destroy runs only the teardown branch of the frame's suspended point and
// finalizes the frame. See [Coroutine.Destroy] for the preconditions.
func (h Handle) Destroy() { h.p.destroy() }

// Done reports whether the frame finished normally, reported an unhandled
// failure, or was destroyed.
func (h Handle) Done() bool { return h.p.header().next == labelCompleted }

// PromiseOf returns the promise of the frame h refers to. The caller must
// supply the frame's concrete promise type; a mismatch panics.
func PromiseOf[P any](h Handle) *P {
	p, ok := h.p.promise().(*P)
	if !ok {
		panic(fmt.Sprintf("coz: promise type mismatch: frame holds %T", h.p.promise()))
	}
	return p
}
