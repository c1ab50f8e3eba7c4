// Package render produces chart series, PNG images and paged documents from
// chart records.
package render

import (
	"fmt"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/sheetviz/backend/internal/models"
)

// Palette is the categorical colour cycle used by pie charts.
var Palette = []drawing.Color{
	{R: 255, G: 99, B: 132, A: 255},
	{R: 54, G: 162, B: 235, A: 255},
	{R: 255, G: 205, B: 86, A: 255},
	{R: 75, G: 192, B: 192, A: 255},
	{R: 153, G: 102, B: 255, A: 255},
	{R: 255, G: 159, B: 64, A: 255},
}

// SeriesColor is the single colour of non-pie 2D charts.
var SeriesColor = drawing.Color{R: 54, G: 162, B: 235, A: 255}

const (
	fillAlpha   = 0.8
	borderAlpha = 1.0
)

// Point is one scatter sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dataset is one plotted series in the browser chart format.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data,omitempty"`
	Points          []Point   `json:"points,omitempty"`
	BackgroundColor []string  `json:"backgroundColor"`
	BorderColor     []string  `json:"borderColor"`
	BorderWidth     int       `json:"borderWidth"`
}

// Series is the plotted form of a chart record.
type Series struct {
	Type     models.ChartType `json:"type"`
	Title    string           `json:"title"`
	XAxis    string           `json:"xAxis"`
	YAxis    string           `json:"yAxis"`
	Labels   []string         `json:"labels,omitempty"`
	Datasets []Dataset        `json:"datasets"`

	colors []drawing.Color
}

// ColorAt returns the fill colour of point i.
func (s *Series) ColorAt(i int) drawing.Color {
	if len(s.colors) == 0 {
		return SeriesColor
	}
	return s.colors[i%len(s.colors)]
}

// PaletteColor returns the pie colour for index i.
func PaletteColor(i int) drawing.Color {
	return Palette[i%len(Palette)]
}

// CSS formats c with the given alpha as an rgba() string.
func CSS(c drawing.Color, alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, alpha)
}

// BuildSeries maps the record's rows onto labels and values. Non-numeric
// values plot as zero; scatter x values fall back to the row index.
func BuildSeries(rec *models.ChartRecord) *Series {
	s := &Series{Type: rec.Type, Title: rec.Title, XAxis: rec.XAxis, YAxis: rec.YAxis}

	if rec.Type == models.ChartTypeScatter {
		points := make([]Point, len(rec.Data))
		for i, row := range rec.Data {
			x, ok := row.Number(rec.XAxis)
			if !ok {
				x = float64(i)
			}
			y, _ := row.Number(rec.YAxis)
			points[i] = Point{X: x, Y: y}
		}
		s.Datasets = []Dataset{{
			Label:           fmt.Sprintf("%s vs %s", rec.XAxis, rec.YAxis),
			Points:          points,
			BackgroundColor: []string{CSS(SeriesColor, fillAlpha)},
			BorderColor:     []string{CSS(SeriesColor, borderAlpha)},
			BorderWidth:     1,
		}}
		return s
	}

	s.Labels = make([]string, len(rec.Data))
	values := make([]float64, len(rec.Data))
	for i, row := range rec.Data {
		s.Labels[i] = row.Label(rec.XAxis)
		values[i], _ = row.Number(rec.YAxis)
	}

	ds := Dataset{Label: rec.YAxis, Data: values, BorderWidth: 1}
	if rec.Type == models.ChartTypePie {
		s.colors = make([]drawing.Color, len(values))
		for i := range values {
			s.colors[i] = PaletteColor(i)
		}
		for _, c := range Palette {
			ds.BackgroundColor = append(ds.BackgroundColor, CSS(c, fillAlpha))
			ds.BorderColor = append(ds.BorderColor, CSS(c, borderAlpha))
		}
	} else {
		ds.BackgroundColor = []string{CSS(SeriesColor, fillAlpha)}
		ds.BorderColor = []string{CSS(SeriesColor, borderAlpha)}
	}
	s.Datasets = []Dataset{ds}
	return s
}

// Values returns the first dataset's values.
func (s *Series) Values() []float64 {
	if len(s.Datasets) == 0 {
		return nil
	}
	return s.Datasets[0].Data
}

// Points returns the first dataset's scatter points.
func (s *Series) Points() []Point {
	if len(s.Datasets) == 0 {
		return nil
	}
	return s.Datasets[0].Points
}
