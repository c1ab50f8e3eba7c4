package scene

import (
	"errors"
	"image"
	"sync"
	"time"
)

// FrameSink receives each rendered frame. It is called on the host's frame
// callback and must not block.
type FrameSink func(frame image.Image)

// Handle is one mounted scene instance. It exclusively owns its graphics
// context and releases it, with every host registration, on Dispose.
type Handle struct {
	mu        sync.Mutex
	host      Host
	gc        Context
	scene     *Scene
	camera    *Camera
	sink      FrameSink
	listeners []ListenerID
	frame     FrameID
	disposed  bool
	frames    int
	lastErr   error

	disposeOnce sync.Once
}

// Mount creates a graphics context through factory, builds the scene for
// inputs, attaches the surface to host, registers resize and pointer
// listeners and requests the first frame.
func Mount(host Host, factory ContextFactory, in Inputs, sink FrameSink) (*Handle, error) {
	if host == nil || factory == nil {
		return nil, &RenderResourceError{Op: "mount", Err: errors.New("host and context factory are required")}
	}
	w, hgt := host.Size()
	gc, err := factory(w, hgt)
	if err != nil {
		return nil, &RenderResourceError{Op: "create context", Err: err}
	}
	if err := host.Mount(gc.Surface()); err != nil {
		gc.Release()
		return nil, &RenderResourceError{Op: "attach surface", Err: err}
	}

	h := &Handle{
		host:   host,
		gc:     gc,
		scene:  NewScene(in),
		camera: NewCamera(w, hgt),
		sink:   sink,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners,
		host.AddListener(EventResize, h.onResize),
		host.AddListener(EventPointer, h.onPointer),
	)
	h.frame = host.RequestFrame(h.tick)
	return h, nil
}

func (h *Handle) tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	h.frame = 0

	h.scene.Advance()
	img, err := h.gc.Draw(h.scene, h.camera)
	if err != nil {
		h.lastErr = err
	} else {
		h.frames++
		if h.sink != nil {
			h.sink(img)
		}
	}
	h.frame = h.host.RequestFrame(h.tick)
}

func (h *Handle) onResize(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed || e.Width <= 0 || e.Height <= 0 {
		return
	}
	if err := h.gc.Resize(e.Width, e.Height); err != nil {
		h.lastErr = err
		return
	}
	h.camera.SetAspect(e.Width, e.Height)
}

func (h *Handle) onPointer(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	s := h.gc.Surface()
	h.camera.PointerOrbit(e.X, e.Y, s.Width, s.Height)
}

// Dispose tears the instance down: listeners are removed, the pending frame
// is canceled, the surface detached and the context released, in that
// order. Later calls do nothing.
func (h *Handle) Dispose() {
	h.disposeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.disposed = true

		for _, id := range h.listeners {
			h.host.RemoveListener(id)
		}
		h.listeners = nil

		if h.frame != 0 {
			h.host.CancelFrame(h.frame)
			h.frame = 0
		}

		h.host.Unmount(h.gc.Surface())
		if err := h.gc.Release(); err != nil {
			h.lastErr = err
		}
	})
}

// Disposed reports whether Dispose has run.
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Frames returns the number of frames delivered to the sink.
func (h *Handle) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Err returns the last draw or resize error.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Camera returns a copy of the current camera.
func (h *Handle) Camera() Camera {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.camera
}

// Scene returns the retained scene. Callers must not mutate it.
func (h *Handle) Scene() *Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scene
}

// Surface returns the context's surface.
func (h *Handle) Surface() Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.gc.Surface()
}
