// Package dataset keeps the parsed rows of each upload in a temporary DuckDB
// file so chart data can be projected without holding every sheet in memory.
package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/sheetviz/backend/internal/models"
)

// Store holds one sheet as a long-format cell table.
type Store struct {
	db       *sql.DB
	dbPath   string
	columns  []string
	colIndex map[string]int
	rowCount int
}

// NewStore creates a DuckDB file for the upload in tempDir.
func NewStore(tempDir, uploadID string) (*Store, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("upload_%s.duckdb", uploadID))
	return NewStoreAtPath(dbPath)
}

// NewStoreAtPath creates a DuckDB file at dbPath, replacing any stale file.
func NewStoreAtPath(dbPath string) (*Store, error) {
	os.Remove(dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE TABLE columns (
			col_idx INTEGER PRIMARY KEY,
			name    VARCHAR NOT NULL
		)`,
		`CREATE TABLE cells (
			row_idx INTEGER NOT NULL,
			col_idx INTEGER NOT NULL,
			is_num  BOOLEAN NOT NULL,
			num     DOUBLE NOT NULL,
			str     VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			os.Remove(dbPath)
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &Store{db: db, dbPath: dbPath, colIndex: make(map[string]int)}, nil
}

// Load writes the sheet into the store with the Appender API.
func (s *Store) Load(ctx context.Context, sheet *models.Sheet) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		colApp, err := duckdb.NewAppenderFromConn(dConn, "", "columns")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer colApp.Close()
		for i, name := range sheet.Columns {
			if err := colApp.AppendRow(int32(i), name); err != nil {
				return fmt.Errorf("failed to append column %d: %w", i, err)
			}
		}
		if err := colApp.Flush(); err != nil {
			return err
		}

		cellApp, err := duckdb.NewAppenderFromConn(dConn, "", "cells")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer cellApp.Close()
		for r, row := range sheet.Rows {
			if r%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			for c, name := range sheet.Columns {
				isNum, num, str := encodeCell(row[name])
				if err := cellApp.AppendRow(int32(r), int32(c), isNum, num, str); err != nil {
					return fmt.Errorf("failed to append row %d: %w", r, err)
				}
			}
		}
		return cellApp.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.columns = append([]string(nil), sheet.Columns...)
	for i, name := range s.columns {
		s.colIndex[name] = i
	}
	s.rowCount = len(sheet.Rows)
	return nil
}

// Columns returns the stored column order.
func (s *Store) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	return s.rowCount
}

// Rows rebuilds up to limit rows (all when limit <= 0), holding only the
// requested columns (all when none are given). Unknown columns are an error.
func (s *Store) Rows(ctx context.Context, columns []string, limit int) ([]models.Row, error) {
	if len(columns) == 0 {
		columns = s.columns
	}
	idx := make([]string, 0, len(columns))
	names := make(map[int]string, len(columns))
	for _, col := range columns {
		i, ok := s.colIndex[col]
		if !ok {
			return nil, fmt.Errorf("unknown column: %s", col)
		}
		idx = append(idx, fmt.Sprint(i))
		names[i] = col
	}

	n := s.rowCount
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Row, n)
	for i := range out {
		out[i] = make(models.Row, len(columns))
	}
	if n == 0 {
		return out, nil
	}

	query := fmt.Sprintf(
		"SELECT row_idx, col_idx, is_num, num, str FROM cells WHERE row_idx < ? AND col_idx IN (%s) ORDER BY row_idx, col_idx",
		strings.Join(idx, ","))
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r, c  int32
			isNum bool
			num   float64
			str   string
		)
		if err := rows.Scan(&r, &c, &isNum, &num, &str); err != nil {
			return nil, err
		}
		if isNum {
			out[r][names[int(c)]] = num
		} else {
			out[r][names[int(c)]] = str
		}
	}
	return out, rows.Err()
}

// Close closes the database and removes the temp file.
func (s *Store) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	if s.dbPath != "" {
		os.Remove(s.dbPath)
		os.Remove(s.dbPath + ".wal")
	}
	return nil
}

func encodeCell(v interface{}) (isNum bool, num float64, str string) {
	if s, ok := v.(string); ok {
		return false, 0, s
	}
	if f, ok := models.ToFloat(v); ok {
		return true, f, ""
	}
	if v == nil {
		return false, 0, ""
	}
	return false, 0, fmt.Sprint(v)
}
