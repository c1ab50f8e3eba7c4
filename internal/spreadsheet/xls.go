package spreadsheet

import (
	"context"

	"github.com/extrame/xls"

	"github.com/sheetviz/backend/internal/models"
)

// XLSParser reads legacy BIFF (.xls) workbooks.
type XLSParser struct{}

func NewXLSParser() *XLSParser { return &XLSParser{} }

func (p *XLSParser) Name() string { return "xls" }

func (p *XLSParser) CanParse(filename string) bool {
	return hasExt(filename, ".xls")
}

func (p *XLSParser) Parse(ctx context.Context, path string) (sheet *models.Sheet, err error) {
	// the BIFF decoder panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			sheet, err = nil, newParseError(path, "malformed workbook", nil)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, newParseError(path, "cannot open workbook", err)
	}
	if wb.NumSheets() == 0 {
		return nil, newParseError(path, "workbook has no sheets", nil)
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, newParseError(path, "cannot read first sheet", nil)
	}

	records := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		records = append(records, padRow(row.FirstCol(), row.LastCol(), row.Col))
	}

	header, data, ok := splitHeader(records)
	if !ok {
		return nil, newParseError(path, "sheet is empty", nil)
	}
	return buildSheet(ctx, ws.Name, header, data)
}

// padRow reads cells [0, last) with the cells before first left blank.
func padRow(first, last int, col func(int) string) []string {
	if last < 0 {
		last = 0
	}
	rec := make([]string, 0, last)
	for j := 0; j < last; j++ {
		if j < first {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, col(j))
	}
	return rec
}
