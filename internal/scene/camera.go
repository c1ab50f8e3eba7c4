package scene

import "math"

const (
	OrbitRadius = 15.0
	OrbitHeight = 10.0
	DefaultFOV  = 75.0
	DefaultNear = 0.1
	DefaultFar  = 1000.0
)

var defaultCameraPosition = Vec3{X: 10, Y: 10, Z: 10}

// Camera is a perspective camera aimed at Target.
type Camera struct {
	Position Vec3
	Target   Vec3
	FOV      float64 // vertical, degrees
	Aspect   float64
	Near     float64
	Far      float64
}

// NewCamera returns the initial camera for a viewport.
func NewCamera(width, height int) *Camera {
	c := &Camera{
		Position: defaultCameraPosition,
		FOV:      DefaultFOV,
		Aspect:   1,
		Near:     DefaultNear,
		Far:      DefaultFar,
	}
	c.SetAspect(width, height)
	return c
}

// SetAspect updates the projection for a new viewport size.
func (c *Camera) SetAspect(width, height int) {
	if width > 0 && height > 0 {
		c.Aspect = float64(width) / float64(height)
	}
}

// NormalizePointer maps viewport pixels to [-1, 1] with y pointing up.
func NormalizePointer(x, y float64, width, height int) (nx, ny float64) {
	nx = x/float64(width)*2 - 1
	ny = -(y/float64(height)*2 - 1)
	return nx, ny
}

// Orbit places the camera on the orbit for normalized pointer coordinates
// and re-aims it at the origin.
func (c *Camera) Orbit(nx, ny float64) {
	c.Position = Vec3{
		X: math.Sin(nx*math.Pi) * OrbitRadius,
		Y: ny*OrbitHeight + OrbitHeight,
		Z: math.Cos(nx*math.Pi) * OrbitRadius,
	}
	c.Target = Vec3{}
}

// PointerOrbit orbits from a pointer position in a width x height viewport.
func (c *Camera) PointerOrbit(x, y float64, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.Orbit(NormalizePointer(x, y, width, height))
}

type viewBasis struct {
	eye, right, up, forward Vec3
}

func (c *Camera) basis() viewBasis {
	f := c.Target.Sub(c.Position).Norm()
	r := f.Cross(Vec3{Y: 1}).Norm()
	if r.Len() == 0 {
		r = Vec3{X: 1}
	}
	return viewBasis{eye: c.Position, right: r, up: r.Cross(f), forward: f}
}

// Depth returns the distance of p along the view direction.
func (c *Camera) Depth(p Vec3) float64 {
	b := c.basis()
	return p.Sub(b.eye).Dot(b.forward)
}

// Project maps a world point to pixel coordinates. ok is false for points
// outside the near and far planes.
func (c *Camera) Project(p Vec3, width, height int) (sx, sy, depth float64, ok bool) {
	return c.basis().project(c, p, width, height)
}

func (b viewBasis) project(c *Camera, p Vec3, width, height int) (sx, sy, depth float64, ok bool) {
	d := p.Sub(b.eye)
	z := d.Dot(b.forward)
	if z < c.Near || z > c.Far {
		return 0, 0, z, false
	}
	t := math.Tan(c.FOV * math.Pi / 360)
	ndcX := d.Dot(b.right) / (z * t * c.Aspect)
	ndcY := d.Dot(b.up) / (z * t)
	sx = (ndcX + 1) / 2 * float64(width)
	sy = (1 - ndcY) / 2 * float64(height)
	return sx, sy, z, true
}
