// Package scene renders a chart record as rotating 3D columns and manages the
// lifecycle of the graphics resources behind each rendered instance.
package scene

import (
	"image/color"
	"reflect"

	"github.com/sheetviz/backend/internal/models"
)

const (
	MaxColumns    = 10
	HeightScale   = 5.0
	ColumnWidth   = 0.8
	ColumnSpacing = 1.5
	RotationStep  = 0.005
	LabelLength   = 8
	LabelOffset   = -1.0
	GridSize      = 20.0
	GridDivisions = 20
)

// ColumnColors is the per-index colour cycle.
var ColumnColors = []color.RGBA{
	{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	{R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
	{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
	{R: 0xef, G: 0x44, B: 0x44, A: 0xff},
	{R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff},
}

var (
	BackgroundColor = color.RGBA{R: 0xf8, G: 0xfa, B: 0xfc, A: 0xff}
	GridColor       = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	LabelColor      = color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
)

// Inputs are the values a scene is built from. Any change requires a rebuild.
type Inputs struct {
	Data  []models.Row
	XAxis string
	YAxis string
}

// Equal reports whether both inputs would build the same scene.
func (in Inputs) Equal(o Inputs) bool {
	return in.XAxis == o.XAxis && in.YAxis == o.YAxis && reflect.DeepEqual(in.Data, o.Data)
}

// Clone deep-copies the inputs.
func (in Inputs) Clone() Inputs {
	return Inputs{Data: models.CloneRows(in.Data), XAxis: in.XAxis, YAxis: in.YAxis}
}

// Column is one bar of the chart in model space. Position is the centre of
// its base.
type Column struct {
	Label    string
	Value    float64
	Height   float64
	Position Vec3
	Color    color.RGBA
}

// BuildColumns lays out the first MaxColumns rows. Heights are relative to
// the largest y value across all rows; with no rows or a non-positive
// maximum no columns are produced.
func BuildColumns(in Inputs) []Column {
	if len(in.Data) == 0 {
		return nil
	}
	max := 0.0
	for i, row := range in.Data {
		v, _ := row.Number(in.YAxis)
		if i == 0 || v > max {
			max = v
		}
	}
	if max <= 0 {
		return nil
	}

	n := len(in.Data)
	if n > MaxColumns {
		n = MaxColumns
	}
	center := float64(n-1) / 2
	cols := make([]Column, n)
	for i := 0; i < n; i++ {
		row := in.Data[i]
		v, _ := row.Number(in.YAxis)
		h := v / max * HeightScale
		if h < 0 {
			h = 0
		}
		cols[i] = Column{
			Label:    truncateLabel(row.Label(in.XAxis)),
			Value:    v,
			Height:   h,
			Position: Vec3{X: (float64(i) - center) * ColumnSpacing},
			Color:    ColumnColors[i%len(ColumnColors)],
		}
	}
	return cols
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) > LabelLength {
		return string(r[:LabelLength])
	}
	return s
}

// Scene is the retained model drawn each frame.
type Scene struct {
	Columns  []Column
	Rotation float64
}

// NewScene builds the scene graph for the inputs.
func NewScene(in Inputs) *Scene {
	return &Scene{Columns: BuildColumns(in)}
}

// Advance applies one frame of idle rotation.
func (s *Scene) Advance() {
	s.Rotation += RotationStep
}

// World maps a model-space point into world space.
func (s *Scene) World(p Vec3) Vec3 {
	return p.RotateY(s.Rotation)
}
