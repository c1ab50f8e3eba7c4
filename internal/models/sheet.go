package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Row maps column names to cell values (float64 or string).
type Row map[string]interface{}

// Clone returns a shallow copy of the row. Cell values are immutable scalars.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Project returns a copy holding only the given columns.
func (r Row) Project(columns ...string) Row {
	c := make(Row, len(columns))
	for _, col := range columns {
		if v, ok := r[col]; ok {
			c[col] = v
		}
	}
	return c
}

// Number returns the numeric value of a cell.
func (r Row) Number(column string) (float64, bool) {
	return ToFloat(r[column])
}

// Label returns the display text of a cell.
func (r Row) Label(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// CloneRows deep-copies a slice of rows.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// ToFloat converts a decoded cell value to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Sheet is the parsed content of one worksheet.
type Sheet struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// RowCount returns the number of data rows.
func (s *Sheet) RowCount() int {
	return len(s.Rows)
}
