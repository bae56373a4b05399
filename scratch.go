package coz

// Disposer is implemented by awaited temporaries that hold resources which
// must be released when the temporary is consumed on resumption or torn
// down by Destroy. Dispose is called exactly once per stored value.
type Disposer interface {
	Dispose()
}

// scratch is the frame's shared temporary cell. A body runs to its next
// suspension or completion before another awaited temporary can be created,
// so at most one is live at a time and a single slot is reused across every
// suspension point. The slot is tagged rather than a raw byte block; the
// body's layout fold still fixes, at definition time, what the cell must be
// able to hold.
type scratch struct {
	value any
	live  bool
}

// set stores a newly constructed temporary. A stale live value, abandoned
// by a failure raised between construction and resumption, is released
// first to keep the one-live-temporary invariant.
func (s *scratch) set(v any) {
	s.dispose()
	s.value = v
	s.live = true
}

// take removes and returns the live value without releasing it. The caller
// becomes responsible for disposal.
func (s *scratch) take() any {
	v := s.value
	s.value = nil
	s.live = false
	return v
}

// dispose releases the live value, if any.
func (s *scratch) dispose() {
	if !s.live {
		return
	}
	disposeValue(s.take())
}

func disposeValue(v any) {
	if d, ok := v.(Disposer); ok {
		d.Dispose()
	}
}
