package chart

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/state"
)

type fakeRows struct {
	rows    []models.Row
	err     error
	columns []string
}

func (f *fakeRows) Rows(_ context.Context, _ string, columns []string, limit int) ([]models.Row, error) {
	f.columns = columns
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Row, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Project(columns...))
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func storeWithColumns(t *testing.T, cols ...string) *state.Store {
	t.Helper()
	s := state.NewStore()
	require.NoError(t, s.AddUpload(models.NewUploadRecord("u1", "f.xlsx", 1)))
	require.NoError(t, s.CompleteUpload("u1", 0, cols))
	return s
}

func TestGenerate_ValidationLeavesStateUntouched(t *testing.T) {
	s := storeWithColumns(t, "Region", "Sales")
	s.FailGeneration("previous")
	g := NewGenerator(s, Options{})

	base := Request{Title: "T", XAxis: "Region", YAxis: "Sales", Data: []models.Row{}}
	tests := []struct {
		name  string
		patch func(r *Request)
		field string
	}{
		{"empty title", func(r *Request) { r.Title = "   " }, "title"},
		{"empty x axis", func(r *Request) { r.XAxis = "" }, "xAxis"},
		{"empty y axis", func(r *Request) { r.YAxis = "" }, "yAxis"},
		{"unknown type", func(r *Request) { r.Type = "radar" }, "type"},
		{"x axis not registered", func(r *Request) { r.XAxis = "Missing" }, "xAxis"},
		{"y axis not registered", func(r *Request) { r.YAxis = "Missing" }, "yAxis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.patch(&req)
			task, err := g.Generate(req)
			assert.Nil(t, task)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.False(t, verr.Conflict)

			assert.False(t, s.IsGenerating())
			assert.Empty(t, s.Charts())
			assert.Equal(t, "previous", s.LastError())
		})
	}
}

func TestGenerate_CommitsRecordAsCurrent(t *testing.T) {
	s := storeWithColumns(t, "Region", "Sales")
	g := NewGenerator(s, Options{NewID: func() string { return "c1" }})

	task, err := g.Generate(Request{Type: "2d-pie", Title: " Sales ", XAxis: "Region", YAxis: "Sales", Data: []models.Row{{"Region": "N", "Sales": 1.0}}})
	require.NoError(t, err)

	rec, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, models.ChartTypePie, rec.Type)
	assert.Equal(t, "Sales", rec.Title)
	assert.Equal(t, "u1", rec.UploadID)

	cur, ok := s.CurrentChart()
	require.True(t, ok)
	assert.Equal(t, "c1", cur.ID)
	assert.False(t, s.IsGenerating())
	up, _ := s.Upload("u1")
	assert.Equal(t, 1, up.ChartsGenerated)
}

func TestGenerate_ConcurrentRequestRejected(t *testing.T) {
	s := storeWithColumns(t, "X", "Y")
	g := NewGenerator(s, Options{Delay: time.Hour})
	defer g.Close()

	req := Request{Title: "T", XAxis: "X", YAxis: "Y", Data: []models.Row{}}
	first, err := g.Generate(req)
	require.NoError(t, err)
	assert.True(t, s.IsGenerating())

	_, err = g.Generate(req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Conflict)
	assert.ErrorIs(t, err, state.ErrGenerationInProgress)

	first.Cancel()
	_, err = first.Result()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, s.IsGenerating())
	assert.Empty(t, s.Charts())
	assert.Equal(t, "chart generation canceled", s.LastError())

	// the flag is free again
	second, err := NewGenerator(s, Options{}).Generate(req)
	require.NoError(t, err)
	_, err = second.Result()
	assert.NoError(t, err)
	assert.Len(t, s.Charts(), 1)
}

func TestGenerate_PreservesRowsVerbatim(t *testing.T) {
	s := storeWithColumns(t, "Date", "Sales")
	g := NewGenerator(s, Options{})

	rows := make([]models.Row, 100)
	for i := range rows {
		rows[i] = models.Row{
			"Date":   fmt.Sprintf("2024-01-%02d", i%30+1),
			"Sales":  float64(i),
			"Region": "North",
			"Extra":  "kept",
		}
	}
	task, err := g.Generate(Request{Title: "T", XAxis: "Date", YAxis: "Sales", Data: rows})
	require.NoError(t, err)

	// caller mutations after submission must not leak into the record
	rows[0]["Sales"] = -1.0

	rec, err := task.Result()
	require.NoError(t, err)
	require.Len(t, rec.Data, 100)
	assert.Equal(t, 0.0, rec.Data[0]["Sales"])
	for i, r := range rec.Data {
		assert.Len(t, r, 4, "row %d", i)
	}
	assert.Equal(t, "kept", rec.Data[99]["Extra"])
}

func TestGenerate_LoadsRowsFromDataset(t *testing.T) {
	s := storeWithColumns(t, "Region", "Sales", "Other")
	src := &fakeRows{rows: []models.Row{
		{"Region": "N", "Sales": 1.0, "Other": "x"},
		{"Region": "S", "Sales": 2.0, "Other": "y"},
	}}
	g := NewGenerator(s, Options{Rows: src, MaxRows: 1})

	task, err := g.Generate(Request{Type: "bar", Title: "T", XAxis: "Region", YAxis: "Sales"})
	require.NoError(t, err)
	rec, err := task.Result()
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Sales"}, src.columns)
	assert.Equal(t, []models.Row{{"Region": "N", "Sales": 1.0}}, rec.Data)
}

func TestGenerate_DatasetErrorPublished(t *testing.T) {
	s := storeWithColumns(t, "A", "B")
	g := NewGenerator(s, Options{Rows: &fakeRows{err: errors.New("no dataset")}})

	task, err := g.Generate(Request{Title: "T", XAxis: "A", YAxis: "B"})
	require.NoError(t, err)
	_, err = task.Result()
	assert.Error(t, err)
	assert.Equal(t, "no dataset", s.LastError())
	assert.Empty(t, s.Charts())

	g.ClearError()
	assert.Empty(t, s.LastError())
}

func TestGenerate_RequiresDataWithoutRowSource(t *testing.T) {
	s := storeWithColumns(t, "A", "B")
	_, err := NewGenerator(s, Options{}).Generate(Request{Title: "T", XAxis: "A", YAxis: "B"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "data", verr.Field)
}

func TestSetCurrent(t *testing.T) {
	s := storeWithColumns(t, "A", "B")
	ids := []string{"c1", "c2"}
	n := 0
	g := NewGenerator(s, Options{NewID: func() string { n++; return ids[n-1] }})

	for range ids {
		task, err := g.Generate(Request{Title: "T", XAxis: "A", YAxis: "B", Data: []models.Row{}})
		require.NoError(t, err)
		_, err = task.Result()
		require.NoError(t, err)
	}

	require.NoError(t, g.SetCurrent("c1"))
	cur, _ := s.CurrentChart()
	assert.Equal(t, "c1", cur.ID)
	assert.ErrorIs(t, g.SetCurrent("nope"), ErrChartNotFound)
}
