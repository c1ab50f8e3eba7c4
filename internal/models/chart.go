package models

import (
	"fmt"
	"strings"
	"time"
)

// ChartType identifies how a chart record is visualised.
type ChartType string

const (
	ChartTypeBar      ChartType = "bar"
	ChartTypeLine     ChartType = "line"
	ChartTypePie      ChartType = "pie"
	ChartTypeScatter  ChartType = "scatter"
	ChartTypeColumn3D ChartType = "column3d"
)

// chartTypeAliases maps the dashboard's legacy identifiers onto chart types.
var chartTypeAliases = map[string]ChartType{
	"2d-bar":     ChartTypeBar,
	"2d-line":    ChartTypeLine,
	"2d-pie":     ChartTypePie,
	"2d-scatter": ChartTypeScatter,
	"3d-column":  ChartTypeColumn3D,
}

// ParseChartType resolves a chart type or one of its aliases.
// An empty string yields the default bar chart.
func ParseChartType(s string) (ChartType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ChartTypeBar, nil
	}
	if t, ok := chartTypeAliases[s]; ok {
		return t, nil
	}
	switch t := ChartType(s); t {
	case ChartTypeBar, ChartTypeLine, ChartTypePie, ChartTypeScatter, ChartTypeColumn3D:
		return t, nil
	}
	return "", fmt.Errorf("unknown chart type: %s", s)
}

// Is3D reports whether the chart is rendered by the scene renderer.
func (t ChartType) Is3D() bool {
	return t == ChartTypeColumn3D
}

// ChartRecord is one generated visualisation and the exact data used to render it.
type ChartRecord struct {
	ID        string    `json:"id" msgpack:"id"`
	Type      ChartType `json:"type" msgpack:"type"`
	Title     string    `json:"title" msgpack:"title"`
	XAxis     string    `json:"xAxis" msgpack:"xAxis"`
	YAxis     string    `json:"yAxis" msgpack:"yAxis"`
	Data      []Row     `json:"data" msgpack:"data"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
	UploadID  string    `json:"uploadId" msgpack:"uploadId"`
}

// Summary returns the record without its data rows.
func (c *ChartRecord) Summary() ChartSummary {
	return ChartSummary{
		ID:        c.ID,
		Type:      c.Type,
		Title:     c.Title,
		XAxis:     c.XAxis,
		YAxis:     c.YAxis,
		RowCount:  len(c.Data),
		CreatedAt: c.CreatedAt,
		UploadID:  c.UploadID,
	}
}

// ChartSummary is the list view of a chart record.
type ChartSummary struct {
	ID        string    `json:"id"`
	Type      ChartType `json:"type"`
	Title     string    `json:"title"`
	XAxis     string    `json:"xAxis"`
	YAxis     string    `json:"yAxis"`
	RowCount  int       `json:"rowCount"`
	CreatedAt time.Time `json:"createdAt"`
	UploadID  string    `json:"uploadId"`
}
