package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChartType(t *testing.T) {
	tests := []struct {
		in      string
		want    ChartType
		wantErr bool
	}{
		{"", ChartTypeBar, false},
		{"bar", ChartTypeBar, false},
		{" Line ", ChartTypeLine, false},
		{"2d-pie", ChartTypePie, false},
		{"2d-scatter", ChartTypeScatter, false},
		{"3d-column", ChartTypeColumn3D, false},
		{"radar", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChartType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, ChartTypeColumn3D.Is3D())
	assert.False(t, ChartTypeBar.Is3D())
}

func TestRowHelpers(t *testing.T) {
	row := Row{"Region": "North", "Sales": 12.5, "Units": 3}

	v, ok := row.Number("Sales")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	v, ok = row.Number("Units")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = row.Number("Region")
	assert.False(t, ok)

	assert.Equal(t, "12.5", row.Label("Sales"))
	assert.Equal(t, "", row.Label("Missing"))
	assert.Equal(t, Row{"Region": "North"}, row.Project("Region", "Missing"))

	rows := []Row{row}
	cloned := CloneRows(rows)
	cloned[0]["Region"] = "South"
	assert.Equal(t, "North", rows[0]["Region"])
	assert.Nil(t, CloneRows(nil))
}

func TestUploadRecordClone(t *testing.T) {
	rec := NewUploadRecord("u1", "a.xlsx", 10)
	assert.False(t, rec.IsTerminal())
	rec.Columns = []string{"A"}

	c := rec.Clone()
	c.Columns[0] = "B"
	assert.Equal(t, "A", rec.Columns[0])

	rec.Status = UploadStatusFailed
	assert.True(t, rec.IsTerminal())

	var nilRec *UploadRecord
	assert.Nil(t, nilRec.Clone())
}
