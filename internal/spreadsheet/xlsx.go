package spreadsheet

import (
	"context"

	"github.com/xuri/excelize/v2"

	"github.com/sheetviz/backend/internal/models"
)

// XLSXParser reads Office Open XML workbooks.
type XLSXParser struct{}

func NewXLSXParser() *XLSXParser { return &XLSXParser{} }

func (p *XLSXParser) Name() string { return "xlsx" }

func (p *XLSXParser) CanParse(filename string) bool {
	return hasExt(filename, ".xlsx", ".xlsm")
}

// Parse reads the first worksheet. The first non-blank row is the header.
func (p *XLSXParser) Parse(ctx context.Context, path string) (*models.Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, newParseError(path, "cannot open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, newParseError(path, "workbook has no sheets", nil)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, newParseError(path, "cannot read rows", err)
	}

	header, data, ok := splitHeader(records)
	if !ok {
		return nil, newParseError(path, "sheet is empty", nil)
	}
	return buildSheet(ctx, sheets[0], header, data)
}
