package scene

import (
	"errors"
	"sync"
)

// ErrViewerClosed is returned by SetInputs after Close.
var ErrViewerClosed = errors.New("viewer closed")

// Viewer keeps one mounted Handle in sync with its inputs: each change of
// data or axes disposes the current handle and mounts a new one.
type Viewer struct {
	mu      sync.Mutex
	host    Host
	factory ContextFactory
	sink    FrameSink
	inputs  Inputs
	handle  *Handle
	mounts  int
	closed  bool
}

func NewViewer(host Host, factory ContextFactory, sink FrameSink) *Viewer {
	return &Viewer{host: host, factory: factory, sink: sink}
}

// SetInputs mounts a scene for in, replacing the current one when the
// inputs differ. On mount failure the viewer is left without a handle.
func (v *Viewer) SetInputs(in Inputs) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewerClosed
	}
	if v.handle != nil && v.inputs.Equal(in) {
		return nil
	}
	if v.handle != nil {
		v.handle.Dispose()
		v.handle = nil
	}

	in = in.Clone()
	h, err := Mount(v.host, v.factory, in, v.sink)
	if err != nil {
		return err
	}
	v.handle = h
	v.inputs = in
	v.mounts++
	return nil
}

// Inputs returns the inputs of the mounted scene.
func (v *Viewer) Inputs() Inputs {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inputs
}

// Handle returns the mounted handle, or nil.
func (v *Viewer) Handle() *Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handle
}

// Mounts returns how many handles have been mounted.
func (v *Viewer) Mounts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounts
}

// Close disposes the mounted handle. It is safe to call more than once.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.handle != nil {
		v.handle.Dispose()
		v.handle = nil
	}
}
