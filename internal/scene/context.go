package scene

import (
	"errors"
	"fmt"
	"image"
)

// ErrContextReleased is returned by a context used after Release.
var ErrContextReleased = errors.New("graphics context released")

// Surface is the drawable a context presents to. A host attaches it while
// the scene is mounted.
type Surface struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Context is the graphics context owned by one scene handle.
type Context interface {
	Surface() *Surface
	Resize(width, height int) error
	Draw(s *Scene, c *Camera) (image.Image, error)
	Release() error
}

// ContextFactory creates a context for a viewport.
type ContextFactory func(width, height int) (Context, error)

// RenderResourceError reports a graphics resource that could not be
// acquired. It is fatal to the affected chart only.
type RenderResourceError struct {
	Op  string
	Err error
}

func (e *RenderResourceError) Error() string {
	return fmt.Sprintf("render resource: %s: %v", e.Op, e.Err)
}

func (e *RenderResourceError) Unwrap() error { return e.Err }
