package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/scene"
)

// ErrInvalidSize is returned for non-positive or oversized dimensions.
var ErrInvalidSize = errors.New("invalid image size")

const (
	DefaultWidth  = 800
	DefaultHeight = 400
	maxDimension  = 4096
	maxTicks      = 20
)

// Renderer draws chart records. Records are immutable, so rendered PNGs are
// cached by chart id and size.
type Renderer struct {
	cache *cache.Cache
	log   logger.Logger
}

// NewRenderer creates a renderer whose cache entries live for ttl.
func NewRenderer(ttl time.Duration, log logger.Logger) *Renderer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Renderer{
		cache: cache.New(ttl, 2*ttl),
		log:   log,
	}
}

func cacheKey(id string, w, h int) string {
	return fmt.Sprintf("%s:%dx%d", id, w, h)
}

// RenderPNG returns the chart as PNG bytes.
func (r *Renderer) RenderPNG(rec *models.ChartRecord, width, height int) ([]byte, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	key := cacheKey(rec.ID, width, height)
	if b, ok := r.cache.Get(key); ok {
		return b.([]byte), nil
	}

	img, err := r.RenderImage(rec, width, height)
	if err != nil {
		return nil, err
	}
	b, err := EncodeImage(img)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, b)
	return b, nil
}

// CacheSize returns the number of cached images.
func (r *Renderer) CacheSize() int {
	return r.cache.ItemCount()
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	return nil
}

// RenderImage draws the record into a pixel buffer. Records with no rows,
// or rows go-chart cannot plot, yield a placeholder with a message.
func (r *Renderer) RenderImage(rec *models.ChartRecord, width, height int) (image.Image, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	if rec.Type.Is3D() {
		return scene.RenderStill(scene.Inputs{Data: rec.Data, XAxis: rec.XAxis, YAxis: rec.YAxis}, width, height)
	}
	if len(rec.Data) == 0 {
		return placeholder(width, height, "No data to display"), nil
	}

	s := BuildSeries(rec)
	var buf bytes.Buffer
	var err error
	switch rec.Type {
	case models.ChartTypePie:
		err = pieChart(s, width, height).Render(chart.PNG, &buf)
	case models.ChartTypeBar:
		err = barChart(s, width, height).Render(chart.PNG, &buf)
	default:
		err = xyChart(s, width, height).Render(chart.PNG, &buf)
	}
	if err != nil {
		r.log.Warn("render", "chart render failed, using placeholder", map[string]interface{}{
			"chart": logger.ShortID(rec.ID),
			"error": err,
		})
		return placeholder(width, height, "Chart could not be rendered"), nil
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode chart image: %w", err)
	}
	return img, nil
}

func pieChart(s *Series, w, h int) chart.PieChart {
	values := make([]chart.Value, 0, len(s.Labels))
	for i, v := range s.Values() {
		if v <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: s.Labels[i],
			Value: v,
			Style: chart.Style{FillColor: s.ColorAt(i).WithAlpha(204), StrokeColor: s.ColorAt(i)},
		})
	}
	if len(values) == 0 {
		values = append(values, chart.Value{Label: "no positive values", Value: 1, Style: chart.Style{FillColor: drawing.ColorFromHex("e5e7eb")}})
	}
	return chart.PieChart{
		Title:  s.Title,
		Width:  w,
		Height: h,
		Values: values,
	}
}

func barChart(s *Series, w, h int) chart.BarChart {
	bars := make([]chart.Value, len(s.Labels))
	for i, v := range s.Values() {
		bars[i] = chart.Value{
			Label: s.Labels[i],
			Value: v,
			Style: chart.Style{FillColor: SeriesColor.WithAlpha(204), StrokeColor: SeriesColor, StrokeWidth: 1},
		}
	}
	slot := float64(w-120) / float64(len(bars))
	barWidth := int(math.Max(1, slot*0.7))
	spacing := int(math.Max(1, slot*0.3))

	bc := chart.BarChart{
		Title:      s.Title,
		Width:      w,
		Height:     h,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 24}},
		BarWidth:   barWidth,
		BarSpacing: spacing,
		Bars:       bars,
	}
	if len(bars) > maxTicks {
		bc.XAxis = chart.Style{Hidden: true}
	}
	if lo, hi := minMax(s.Values()); lo >= 0 {
		bc.YAxis = chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: padMax(hi)}}
	}
	return bc
}

func xyChart(s *Series, w, h int) chart.Chart {
	var xs, ys []float64
	var ticks []chart.Tick
	style := chart.Style{StrokeColor: SeriesColor, StrokeWidth: 2, DotWidth: 3, DotColor: SeriesColor}

	if s.Type == models.ChartTypeScatter {
		for _, p := range s.Points() {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
		style = chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: SeriesColor.WithAlpha(204)}
	} else {
		ys = s.Values()
		xs = make([]float64, len(ys))
		step := int(math.Ceil(float64(len(ys)) / maxTicks))
		for i := range ys {
			xs[i] = float64(i)
			if i%step == 0 {
				ticks = append(ticks, chart.Tick{Value: float64(i), Label: truncate(s.Labels[i], 10)})
			}
		}
	}

	xlo, xhi := minMax(xs)
	ylo, yhi := minMax(ys)
	if ylo > 0 {
		ylo = 0
	}
	return chart.Chart{
		Title:      s.Title,
		Width:      w,
		Height:     h,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 24}},
		XAxis:      chart.XAxis{Name: s.XAxis, Range: padRange(xlo, xhi), Ticks: ticks},
		YAxis:      chart.YAxis{Name: s.YAxis, Range: padRange(ylo, yhi)},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    s.YAxis,
				XValues: xs,
				YValues: ys,
				Style:   style,
			},
		},
	}
}

// padRange widens degenerate ranges so go-chart does not reject them.
func padRange(lo, hi float64) *chart.ContinuousRange {
	if hi-lo < 1e-9 {
		return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func padMax(hi float64) float64 {
	if hi <= 0 {
		return 1
	}
	return hi * 1.1
}

func minMax(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func placeholder(w, h int, text string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 249, G: 250, B: 251, A: 255}), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{R: 107, G: 114, B: 128, A: 255}), Face: face}
	tw := dr.MeasureString(text).Ceil()
	dr.Dot = fixed.P((w-tw)/2, h/2)
	dr.DrawString(strings.TrimSpace(text))
	return img
}

// EncodeImage encodes any pixel buffer as PNG.
func EncodeImage(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no image to encode")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
