package scene

import "image"

// RenderStill draws a single frame of the scene for inputs with the initial
// camera, using a throwaway software context.
func RenderStill(in Inputs, width, height int) (image.Image, error) {
	gc, err := NewSoftwareContext(width, height)
	if err != nil {
		return nil, &RenderResourceError{Op: "create context", Err: err}
	}
	defer gc.Release()
	return gc.Draw(NewScene(in), NewCamera(width, height))
}
