package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Lighting in model space, mirroring an ambient plus directional rig.
var (
	lightDir         = Vec3{X: 10, Y: 10, Z: 5}.Norm()
	ambientIntensity = 0.6 * 0x40 / 255.0
	directIntensity  = 0.8
)

// MaxSurfaceSize bounds software surfaces in either dimension.
const MaxSurfaceSize = 4096

// SoftwareContext rasterizes scenes on the CPU.
type SoftwareContext struct {
	mu       sync.Mutex
	surface  *Surface
	released bool
	raster   *vector.Rasterizer
}

// NewSoftwareContext allocates a context for a width x height surface.
func NewSoftwareContext(width, height int) (*SoftwareContext, error) {
	if err := checkSurfaceSize(width, height); err != nil {
		return nil, err
	}
	return &SoftwareContext{
		surface: &Surface{ID: uuid.New().String(), Width: width, Height: height},
		raster:  vector.NewRasterizer(width, height),
	}, nil
}

// SoftwareFactory is the ContextFactory for SoftwareContext.
func SoftwareFactory(width, height int) (Context, error) {
	return NewSoftwareContext(width, height)
}

func checkSurfaceSize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxSurfaceSize || height > MaxSurfaceSize {
		return fmt.Errorf("unsupported surface size %dx%d", width, height)
	}
	return nil
}

func (c *SoftwareContext) Surface() *Surface {
	return c.surface
}

func (c *SoftwareContext) Resize(width, height int) error {
	if err := checkSurfaceSize(width, height); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrContextReleased
	}
	c.surface.Width, c.surface.Height = width, height
	c.raster.Reset(width, height)
	return nil
}

// Released reports whether Release has been called.
func (c *SoftwareContext) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *SoftwareContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrContextReleased
	}
	c.released = true
	c.raster = nil
	return nil
}

type face struct {
	pts   [4]Vec3
	color color.RGBA
	depth float64
}

// Draw renders one frame: grid, depth-sorted column faces, then labels.
func (c *SoftwareContext) Draw(s *Scene, cam *Camera) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrContextReleased
	}

	w, h := c.surface.Width, c.surface.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(BackgroundColor), image.Point{}, draw.Src)

	b := cam.basis()
	c.drawGrid(img, s, cam, b)

	var faces []face
	for _, col := range s.Columns {
		faces = append(faces, columnFaces(s, cam, b, col)...)
	}
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].depth > faces[j].depth })
	for _, f := range faces {
		c.fillQuad(img, cam, b, f)
	}

	drawLabels(img, s, cam, b)
	return img, nil
}

// columnFaces returns the camera-facing faces of a box, in world space.
func columnFaces(s *Scene, cam *Camera, b viewBasis, col Column) []face {
	if col.Height <= 0 {
		return nil
	}
	hw := ColumnWidth / 2
	x0, x1 := col.Position.X-hw, col.Position.X+hw
	z0, z1 := col.Position.Z-hw, col.Position.Z+hw
	y0, y1 := col.Position.Y, col.Position.Y+col.Height

	type side struct {
		normal Vec3
		pts    [4]Vec3
	}
	sides := []side{
		{Vec3{Y: 1}, [4]Vec3{{x0, y1, z0}, {x1, y1, z0}, {x1, y1, z1}, {x0, y1, z1}}},
		{Vec3{Y: -1}, [4]Vec3{{x0, y0, z0}, {x0, y0, z1}, {x1, y0, z1}, {x1, y0, z0}}},
		{Vec3{Z: 1}, [4]Vec3{{x0, y0, z1}, {x0, y1, z1}, {x1, y1, z1}, {x1, y0, z1}}},
		{Vec3{Z: -1}, [4]Vec3{{x0, y0, z0}, {x1, y0, z0}, {x1, y1, z0}, {x0, y1, z0}}},
		{Vec3{X: 1}, [4]Vec3{{x1, y0, z0}, {x1, y0, z1}, {x1, y1, z1}, {x1, y1, z0}}},
		{Vec3{X: -1}, [4]Vec3{{x0, y0, z0}, {x0, y1, z0}, {x0, y1, z1}, {x0, y0, z1}}},
	}

	out := make([]face, 0, 3)
	for _, sd := range sides {
		var f face
		center := Vec3{}
		for i, p := range sd.pts {
			f.pts[i] = s.World(p)
			center = center.Add(f.pts[i])
		}
		center = center.Scale(0.25)
		n := s.World(sd.normal)
		if n.Dot(cam.Position.Sub(center)) <= 0 {
			continue
		}
		f.color = shade(col.Color, sd.normal)
		f.depth = center.Sub(b.eye).Dot(b.forward)
		out = append(out, f)
	}
	return out
}

// shade applies Lambert lighting; normal is in model space, as is the light.
func shade(c color.RGBA, normal Vec3) color.RGBA {
	k := ambientIntensity + directIntensity*math.Max(0, normal.Dot(lightDir))
	if k > 1 {
		k = 1
	}
	return color.RGBA{
		R: uint8(float64(c.R) * k),
		G: uint8(float64(c.G) * k),
		B: uint8(float64(c.B) * k),
		A: c.A,
	}
}

func (c *SoftwareContext) fillQuad(img *image.RGBA, cam *Camera, b viewBasis, f face) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pts := make([]point2, 0, 4)
	for _, p := range f.pts {
		sx, sy, _, ok := b.project(cam, p, w, h)
		if !ok {
			return
		}
		pts = append(pts, point2{sx, sy})
	}
	c.fillPolygon(img, image.NewUniform(f.color), pts)
}

// fillPolygon fills a convex screen-space polygon, clipped to the image.
func (c *SoftwareContext) fillPolygon(img *image.RGBA, src image.Image, pts []point2) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pts = clipPolygon(pts, float64(w), float64(h))
	if len(pts) < 3 {
		return
	}
	c.raster.Reset(w, h)
	c.raster.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		c.raster.LineTo(float32(p.X), float32(p.Y))
	}
	c.raster.ClosePath()
	c.raster.Draw(img, img.Bounds(), src, image.Point{})
}

func (c *SoftwareContext) drawGrid(img *image.RGBA, s *Scene, cam *Camera, b viewBasis) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	half := GridSize / 2
	step := GridSize / GridDivisions
	src := image.NewUniform(GridColor)
	for i := 0; i <= GridDivisions; i++ {
		v := -half + float64(i)*step
		segments := [2][2]Vec3{
			{{X: v, Z: -half}, {X: v, Z: half}},
			{{X: -half, Z: v}, {X: half, Z: v}},
		}
		for _, seg := range segments {
			x0, y0, _, ok0 := b.project(cam, s.World(seg[0]), w, h)
			x1, y1, _, ok1 := b.project(cam, s.World(seg[1]), w, h)
			if !ok0 || !ok1 {
				continue
			}
			c.strokeLine(img, src, x0, y0, x1, y1)
		}
	}
}

// strokeLine fills a one pixel wide quad along the segment.
func (c *SoftwareContext) strokeLine(img *image.RGBA, src image.Image, x0, y0, x1, y1 float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	px, py := -dy/l*0.5, dx/l*0.5
	c.fillPolygon(img, src, []point2{
		{x0 + px, y0 + py},
		{x1 + px, y1 + py},
		{x1 - px, y1 - py},
		{x0 - px, y0 - py},
	})
}

func drawLabels(img *image.RGBA, s *Scene, cam *Camera, b viewBasis) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dr := &font.Drawer{Dst: img, Src: image.NewUniform(LabelColor), Face: basicfont.Face7x13}
	for _, col := range s.Columns {
		if col.Label == "" {
			continue
		}
		p := col.Position.Add(Vec3{Y: LabelOffset})
		sx, sy, _, ok := b.project(cam, s.World(p), w, h)
		if !ok {
			continue
		}
		tw := dr.MeasureString(col.Label).Ceil()
		dr.Dot = fixed.P(int(sx)-tw/2, int(sy))
		dr.DrawString(col.Label)
	}
}
