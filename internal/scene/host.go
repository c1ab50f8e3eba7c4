package scene

import "time"

// EventKind identifies a host input event.
type EventKind string

const (
	EventResize  EventKind = "resize"
	EventPointer EventKind = "pointer"
)

// Event is a viewport input. Pointer events carry X and Y in viewport
// pixels; resize events carry the new Width and Height.
type Event struct {
	Kind   EventKind
	X, Y   float64
	Width  int
	Height int
}

type (
	ListenerID uint64
	FrameID    uint64
	Listener   func(Event)
	FrameFunc  func(now time.Time)
)

// Host owns the viewport a scene is mounted into: its event listeners,
// its animation-frame scheduling and the attached surface.
type Host interface {
	Size() (width, height int)
	AddListener(kind EventKind, fn Listener) ListenerID
	RemoveListener(id ListenerID)
	RequestFrame(fn FrameFunc) FrameID
	CancelFrame(id FrameID)
	Mount(s *Surface) error
	Unmount(s *Surface)
}
