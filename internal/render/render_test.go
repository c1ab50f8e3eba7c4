package render

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetviz/backend/internal/models"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func record(typ models.ChartType, n int) *models.ChartRecord {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.Row{"Region": []string{"North", "South", "East", "West"}[i%4], "Sales": float64(10 * (i + 1))}
	}
	return &models.ChartRecord{ID: "c-" + string(typ), Type: typ, Title: "Sales by region", XAxis: "Region", YAxis: "Sales", Data: rows}
}

func TestBuildSeries_PieCyclesPalette(t *testing.T) {
	s := BuildSeries(record(models.ChartTypePie, 8))

	require.Len(t, s.Datasets, 1)
	assert.Equal(t, 6, len(s.Datasets[0].BackgroundColor))
	assert.Equal(t, "rgba(255, 99, 132, 0.8)", s.Datasets[0].BackgroundColor[0])
	assert.Equal(t, "rgba(255, 159, 64, 1)", s.Datasets[0].BorderColor[5])

	assert.Equal(t, Palette[0], s.ColorAt(0))
	assert.Equal(t, Palette[5], s.ColorAt(5))
	assert.Equal(t, Palette[0], s.ColorAt(6))
	assert.Equal(t, Palette[1], s.ColorAt(7))
}

func TestBuildSeries_SingleColourForOtherTypes(t *testing.T) {
	for _, typ := range []models.ChartType{models.ChartTypeBar, models.ChartTypeLine} {
		t.Run(string(typ), func(t *testing.T) {
			s := BuildSeries(record(typ, 3))
			assert.Equal(t, []string{"rgba(54, 162, 235, 0.8)"}, s.Datasets[0].BackgroundColor)
			assert.Equal(t, SeriesColor, s.ColorAt(2))
			assert.Equal(t, []string{"North", "South", "East"}, s.Labels)
			assert.Equal(t, []float64{10, 20, 30}, s.Values())
		})
	}
}

func TestBuildSeries_ScatterPairs(t *testing.T) {
	rec := &models.ChartRecord{
		Type:  models.ChartTypeScatter,
		XAxis: "X",
		YAxis: "Y",
		Data: []models.Row{
			{"X": 1.5, "Y": 3.0},
			{"X": "label", "Y": "oops"},
		},
	}
	s := BuildSeries(rec)
	assert.Nil(t, s.Labels)
	assert.Equal(t, []Point{{X: 1.5, Y: 3}, {X: 1, Y: 0}}, s.Points())
	assert.Equal(t, "X vs Y", s.Datasets[0].Label)
}

func TestRenderer_RenderPNG(t *testing.T) {
	r := NewRenderer(time.Minute, nil)
	for _, typ := range []models.ChartType{models.ChartTypeBar, models.ChartTypeLine, models.ChartTypePie, models.ChartTypeScatter} {
		t.Run(string(typ), func(t *testing.T) {
			b, err := r.RenderPNG(record(typ, 12), 640, 320)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(b, pngSignature))
		})
	}
	assert.Equal(t, 4, r.CacheSize())

	// second call is served from the cache
	_, err := r.RenderPNG(record(models.ChartTypeBar, 12), 640, 320)
	require.NoError(t, err)
	assert.Equal(t, 4, r.CacheSize())
}

func TestRenderer_EmptyAndInvalid(t *testing.T) {
	r := NewRenderer(time.Minute, nil)

	img, err := r.RenderImage(record(models.ChartTypeBar, 0), 200, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())

	_, err = r.RenderPNG(record(models.ChartTypeBar, 1), 0, 100)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestPageSlices(t *testing.T) {
	slices := PageSlices(image.Rect(0, 0, 100, 1000))
	require.Len(t, slices, 8)
	assert.Equal(t, image.Rect(0, 0, 100, 140), slices[0])
	assert.Equal(t, image.Rect(0, 980, 100, 1000), slices[7])

	assert.Len(t, PageSlices(image.Rect(0, 0, 800, 400)), 1)
	assert.Empty(t, PageSlices(image.Rect(0, 0, 0, 0)))
}

func TestExportDocument(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 300))
	for y := 0; y < 300; y++ {
		img.Set(50, y, color.Black)
	}

	b, err := ExportDocument("Tall chart", img)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("PK")))

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	media := 0
	for _, f := range zr.File {
		if bytes.HasPrefix([]byte(f.Name), []byte("word/media/")) {
			media++
		}
	}
	assert.Equal(t, 3, media)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "Sales_by_region.pdf", ExportFilename("Sales by  region", ".pdf"))
	assert.Equal(t, "chart.png", ExportFilename("", ".png"))
}

func TestEncodeImage(t *testing.T) {
	b, err := EncodeImage(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, pngSignature))

	_, err = EncodeImage(nil)
	assert.Error(t, err)
}
