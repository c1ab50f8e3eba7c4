package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetviz/backend/internal/models"
)

func drain(ch <-chan Event) []EventKind {
	var kinds []EventKind
	for {
		select {
		case e := <-ch:
			kinds = append(kinds, e.Kind)
		default:
			return kinds
		}
	}
}

func TestStore_UploadLogNewestFirst(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUpload(models.NewUploadRecord("a", "a.xlsx", 10)))
	require.NoError(t, s.AddUpload(models.NewUploadRecord("b", "b.xlsx", 20)))

	ups := s.Uploads()
	require.Len(t, ups, 2)
	assert.Equal(t, "b", ups[0].ID)
	assert.Equal(t, "a", ups[1].ID)

	st := s.Stats()
	assert.Equal(t, 2, st.TotalUploads)
	assert.Equal(t, int64(30), st.StorageUsed)

	assert.Error(t, s.AddUpload(models.NewUploadRecord("a", "dup.xlsx", 1)))
}

func TestStore_CompleteUploadPublishesColumnsBeforeStatus(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(16)
	defer cancel()

	require.NoError(t, s.AddUpload(models.NewUploadRecord("u1", "f.xlsx", 1)))
	require.NoError(t, s.CompleteUpload("u1", 3, []string{"X", "Y"}))

	assert.Equal(t, []EventKind{EventUploadAdded, EventColumnsPublished, EventUploadCompleted}, drain(ch))

	rec, ok := s.Upload("u1")
	require.True(t, ok)
	assert.Equal(t, models.UploadStatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.RowCount)
	assert.Equal(t, []string{"X", "Y"}, s.Columns().Columns)
	assert.Equal(t, "u1", s.Columns().UploadID)

	// terminal records cannot transition again
	assert.Error(t, s.FailUpload("u1", "late"))
}

func TestStore_FailUploadLeavesRegistry(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUpload(models.NewUploadRecord("u1", "f.xlsx", 1)))
	require.NoError(t, s.CompleteUpload("u1", 1, []string{"A"}))

	require.NoError(t, s.AddUpload(models.NewUploadRecord("u2", "g.xlsx", 1)))
	require.NoError(t, s.FailUpload("u2", "bad file"))

	assert.Equal(t, []string{"A"}, s.Columns().Columns)
	rec, _ := s.Upload("u2")
	assert.Equal(t, models.UploadStatusFailed, rec.Status)
	assert.Equal(t, "bad file", rec.Error)
}

func TestStore_CopiesDoNotAlias(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUpload(models.NewUploadRecord("u1", "f.xlsx", 1)))
	require.NoError(t, s.CompleteUpload("u1", 1, []string{"A"}))

	cols := s.Columns()
	cols.Columns[0] = "mutated"
	ups := s.Uploads()
	ups[0].Columns[0] = "mutated"

	assert.Equal(t, []string{"A"}, s.Columns().Columns)
	rec, _ := s.Upload("u1")
	assert.Equal(t, []string{"A"}, rec.Columns)
}

func TestStore_GenerationLifecycle(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUpload(models.NewUploadRecord("u1", "f.xlsx", 1)))

	require.NoError(t, s.BeginGeneration())
	assert.True(t, s.IsGenerating())
	assert.ErrorIs(t, s.BeginGeneration(), ErrGenerationInProgress)

	s.FailGeneration("")
	assert.False(t, s.IsGenerating())
	assert.Equal(t, "Failed to generate chart", s.LastError())
	assert.Empty(t, s.Charts())

	require.NoError(t, s.BeginGeneration())
	assert.Empty(t, s.LastError())
	rec := &models.ChartRecord{ID: "c1", Type: models.ChartTypeBar, UploadID: "u1"}
	s.FinishGeneration(rec)

	cur, ok := s.CurrentChart()
	require.True(t, ok)
	assert.Equal(t, "c1", cur.ID)
	assert.Len(t, s.Charts(), 1)
	up, _ := s.Upload("u1")
	assert.Equal(t, 1, up.ChartsGenerated)
}

func TestStore_SetCurrentChartAndClearError(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.BeginGeneration())
	s.FinishGeneration(&models.ChartRecord{ID: "c1"})
	require.NoError(t, s.BeginGeneration())
	s.FinishGeneration(&models.ChartRecord{ID: "c2"})

	require.NoError(t, s.SetCurrentChart("c1"))
	cur, _ := s.CurrentChart()
	assert.Equal(t, "c1", cur.ID)
	assert.Error(t, s.SetCurrentChart("missing"))

	require.NoError(t, s.BeginGeneration())
	s.FailGeneration("boom")
	s.ClearError()
	assert.Empty(t, s.LastError())

	snap := s.Snapshot()
	assert.Len(t, snap.Charts, 2)
	assert.Equal(t, "c1", snap.CurrentChartID)
	assert.Equal(t, 2, snap.Stats.TotalCharts)
}

func TestStore_ConcurrentBeginOnlyOneWins(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginGeneration() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	s := NewStore()
	dropped := 0
	s.OnDrop(func(Event) { dropped++ })
	_, cancel := s.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.BeginGeneration())
		s.FailGeneration("x")
	}
	assert.Equal(t, 5, dropped)
}
