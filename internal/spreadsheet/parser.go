// Package spreadsheet turns uploaded workbooks into column lists and rows.
package spreadsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sheetviz/backend/internal/models"
)

// Parser defines the interface for spreadsheet parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser handles the given file name.
	CanParse(filename string) bool
	// Parse reads the first worksheet of the file at path.
	Parse(ctx context.Context, path string) (*models.Sheet, error)
}

// ParseError reports a file that could not be turned into a sheet.
type ParseError struct {
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.File, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(path, reason string, err error) *ParseError {
	return &ParseError{File: filepath.Base(path), Reason: reason, Err: err}
}

// InferValue converts a raw cell into a float64 when it is numeric,
// otherwise returns the trimmed string.
func InferValue(raw string) interface{} {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil && looksNumeric(s) {
		return f
	}
	return s
}

// looksNumeric rejects inputs ParseFloat accepts but a spreadsheet user
// would not read as numbers (Inf, NaN, hex).
func looksNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' || c == ',' || c == '-' || c == '+' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return true
}

// NormalizeHeaders makes header cells usable as column names: blanks become
// "Column N" and repeats get a " (n)" suffix.
func NormalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(h)
		if base == "" {
			base = fmt.Sprintf("Column %d", i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s (%d)", base, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// buildSheet assembles a sheet from a header row and raw records.
// Entirely blank records are skipped; short records are padded with "".
func buildSheet(ctx context.Context, name string, header []string, records [][]string) (*models.Sheet, error) {
	columns := NormalizeHeaders(header)
	rows := make([]models.Row, 0, len(records))
	for i, rec := range records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlank(rec) {
			continue
		}
		row := make(models.Row, len(columns))
		for j, col := range columns {
			if j < len(rec) {
				row[col] = InferValue(rec[j])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return &models.Sheet{Name: name, Columns: columns, Rows: rows}, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// splitHeader returns the first non-blank record as header and the rest as data.
func splitHeader(records [][]string) ([]string, [][]string, bool) {
	for i, rec := range records {
		if !isBlank(rec) {
			return rec, records[i+1:], true
		}
	}
	return nil, nil, false
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
