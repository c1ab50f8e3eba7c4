package scene

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrSurfaceMounted is returned when a second surface is attached.
var ErrSurfaceMounted = errors.New("a surface is already mounted")

type listenerEntry struct {
	kind EventKind
	fn   Listener
}

// LoopHost is a Host driven by one goroutine. Listener dispatch and frame
// callbacks run serially on that goroutine; requested frames run on the
// next tick of the frame interval.
type LoopHost struct {
	mu        sync.Mutex
	width     int
	height    int
	interval  time.Duration
	nextID    uint64
	listeners map[ListenerID]listenerEntry
	frames    map[FrameID]FrameFunc
	surface   *Surface

	events chan Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewLoopHost creates a host for a width x height viewport.
func NewLoopHost(width, height int, interval time.Duration) *LoopHost {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &LoopHost{
		width:     width,
		height:    height,
		interval:  interval,
		listeners: make(map[ListenerID]listenerEntry),
		frames:    make(map[FrameID]FrameFunc),
		events:    make(chan Event, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *LoopHost) id() uint64 {
	h.nextID++
	return h.nextID
}

func (h *LoopHost) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

func (h *LoopHost) AddListener(kind EventKind, fn Listener) ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := ListenerID(h.id())
	h.listeners[id] = listenerEntry{kind: kind, fn: fn}
	return id
}

func (h *LoopHost) RemoveListener(id ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

func (h *LoopHost) RequestFrame(fn FrameFunc) FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := FrameID(h.id())
	h.frames[id] = fn
	return id
}

func (h *LoopHost) CancelFrame(id FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.frames, id)
}

func (h *LoopHost) Mount(s *Surface) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surface != nil {
		return ErrSurfaceMounted
	}
	h.surface = s
	return nil
}

func (h *LoopHost) Unmount(s *Surface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surface == s {
		h.surface = nil
	}
}

// Mounted returns the attached surface, or nil.
func (h *LoopHost) Mounted() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surface
}

// Pending returns the number of registered listeners and requested frames.
func (h *LoopHost) Pending() (listeners, frames int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners), len(h.frames)
}

// Dispatch queues an input event for the loop. Events are dropped when the
// queue is full or the host has stopped.
func (h *LoopHost) Dispatch(e Event) bool {
	select {
	case <-h.stop:
		return false
	default:
	}
	select {
	case h.events <- e:
		return true
	default:
		return false
	}
}

// Run drives the loop until ctx is done or Stop is called.
func (h *LoopHost) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case e := <-h.events:
			h.dispatch(e)
		case now := <-ticker.C:
			h.runFrames(now)
		}
	}
}

// Stop ends Run. Use Done to wait for it.
func (h *LoopHost) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Done is closed when Run returns.
func (h *LoopHost) Done() <-chan struct{} {
	return h.done
}

func (h *LoopHost) dispatch(e Event) {
	h.mu.Lock()
	if e.Kind == EventResize && e.Width > 0 && e.Height > 0 {
		h.width, h.height = e.Width, e.Height
	}
	ids := make([]ListenerID, 0, len(h.listeners))
	for id, l := range h.listeners {
		if l.kind == e.Kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = h.listeners[id].fn
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// runFrames runs the frames requested before this tick. Frames requested by
// those callbacks wait for the next tick.
func (h *LoopHost) runFrames(now time.Time) {
	h.mu.Lock()
	if len(h.frames) == 0 {
		h.mu.Unlock()
		return
	}
	pending := h.frames
	h.frames = make(map[FrameID]FrameFunc)
	h.mu.Unlock()

	ids := make([]FrameID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		pending[id](now)
	}
}
