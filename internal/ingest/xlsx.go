// Package ingest turns uploaded test reports into test cases.
package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Boomnana/test-agent/internal/model"
)

// headerScanRows is how far down a sheet the header row is searched for.
const headerScanRows = 10

// XLSXOptions configures spreadsheet parsing.
type XLSXOptions struct {
	// SheetName selects a sheet. When empty the first sheet with a
	// recognizable header is used.
	SheetName string
}

// ErrNoHeader is returned when no sheet has a title or result column.
var ErrNoHeader = eris.New("ingest: no test case header found")

// ReadXLSX parses the test cases in the spreadsheet at path.
func ReadXLSX(ctx context.Context, path string, opts XLSXOptions) ([]*model.TestCase, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheets := f.Sheets
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		sheets = []*xlsx.Sheet{sheet}
	}

	for _, sheet := range sheets {
		headerRow, cols := findHeader(sheet)
		if cols == nil {
			continue
		}
		return readRows(ctx, sheet, headerRow, cols)
	}
	return nil, ErrNoHeader
}

func findHeader(sheet *xlsx.Sheet) (int, map[field]int) {
	for i, row := range sheet.Rows {
		if i >= headerScanRows {
			break
		}
		cols := make(map[field]int)
		for j, cell := range rowToStrings(row) {
			if f := lookupHeader(cell); f != fieldUnknown {
				if _, seen := cols[f]; !seen {
					cols[f] = j
				}
			}
		}
		_, hasTitle := cols[fieldTitle]
		_, hasResult := cols[fieldResult]
		if hasTitle && hasResult {
			return i, cols
		}
	}
	return 0, nil
}

func readRows(ctx context.Context, sheet *xlsx.Sheet, headerRow int, cols map[field]int) ([]*model.TestCase, error) {
	var cases []*model.TestCase
	for i := headerRow + 1; i < len(sheet.Rows); i++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: read rows")
		}
		cells := rowToStrings(sheet.Rows[i])
		get := func(f field) string {
			j, ok := cols[f]
			if !ok || j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}

		tc := &model.TestCase{
			Row:          i + 1,
			CaseID:       get(fieldCaseID),
			Title:        get(fieldTitle),
			Module:       get(fieldModule),
			Precondition: get(fieldPrecondition),
			Steps:        get(fieldSteps),
			Expected:     get(fieldExpected),
			Actual:       get(fieldActual),
			RawResult:    get(fieldResult),
			Remark:       get(fieldRemark),
			Tester:       get(fieldTester),
		}
		if tc.Title == "" && tc.CaseID == "" && tc.RawResult == "" && tc.Steps == "" {
			continue
		}
		tc.Result = NormalizeResult(tc.RawResult)
		if tc.Module != "" {
			tc.ModuleSource = "sheet"
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
