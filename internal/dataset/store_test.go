package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetviz/backend/internal/models"
)

func sampleSheet() *models.Sheet {
	return &models.Sheet{
		Name:    "Sheet1",
		Columns: []string{"Region", "Sales", "Note"},
		Rows: []models.Row{
			{"Region": "North", "Sales": 120.0, "Note": ""},
			{"Region": "South", "Sales": 80.5, "Note": "late"},
			{"Region": "East", "Sales": "n/a", "Note": "x"},
		},
	}
}

func TestStore_LoadAndProject(t *testing.T) {
	st, err := NewStore(t.TempDir(), "u1")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Load(context.Background(), sampleSheet()))
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, []string{"Region", "Sales", "Note"}, st.Columns())

	rows, err := st.Rows(context.Background(), []string{"Region", "Sales"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.Row{"Region": "North", "Sales": 120.0}, rows[0])
	assert.Equal(t, models.Row{"Region": "South", "Sales": 80.5}, rows[1])
	assert.Equal(t, models.Row{"Region": "East", "Sales": "n/a"}, rows[2])
}

func TestStore_RowsLimitAndAllColumns(t *testing.T) {
	st, err := NewStore(t.TempDir(), "u2")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Load(context.Background(), sampleSheet()))

	rows, err := st.Rows(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "late", rows[1]["Note"])
	assert.Equal(t, "", rows[0]["Note"])

	_, err = st.Rows(context.Background(), []string{"Missing"}, 0)
	assert.Error(t, err)
}

func TestStore_CloseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStore(dir, "u3")
	require.NoError(t, err)
	require.NoError(t, st.Load(context.Background(), sampleSheet()))

	path := filepath.Join(dir, "upload_u3.duckdb")
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, st.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_PutRowsDrop(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "u1", sampleSheet()))
	assert.True(t, m.Has("u1"))

	rows, err := m.Rows(ctx, "u1", []string{"Sales"}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = m.Rows(ctx, "missing", nil, 0)
	assert.Error(t, err)

	m.Drop("u1")
	assert.False(t, m.Has("u1"))
}
