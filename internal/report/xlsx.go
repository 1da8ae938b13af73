package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Summary"
	sheetReleases = "Releases"
	sheetReturns  = "Returns"
)

// WriteXLSX renders m as a workbook with one sheet per section.
func WriteXLSX(w io.Writer, m *Monthly) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	for _, name := range []string{sheetReleases, sheetReturns} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	title := fmt.Sprintf("Storeroom report %s", m.From.Format("2006-01"))
	summary := [][]any{
		{title},
		{"Item", "Category", "Unit", "Released", "Returned", "On hand"},
	}
	for _, t := range m.Totals {
		summary = append(summary, []any{t.Name, t.Category, t.Unit, t.Released, t.Returned, t.OnHand})
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}

	releases := [][]any{{"Date", "Item", "Quantity", "Returned", "Recipient", "Released by", "Approval", "Return status"}}
	for _, r := range m.Releases {
		releases = append(releases, []any{
			r.CreatedAt.Format(time.DateOnly), r.ItemName, r.Quantity, r.QtyReturned,
			r.Recipient, r.ReleasedBy, r.Approval, r.ReturnStatus,
		})
	}
	if err := writeRows(f, sheetReleases, releases); err != nil {
		return err
	}

	returns := [][]any{{"Date", "Item", "Quantity", "Returned by", "Condition", "Status"}}
	for _, r := range m.Returns {
		returns = append(returns, []any{
			r.CreatedAt.Format(time.DateOnly), r.ItemName, r.Quantity, r.ReturnedBy, r.Condition, r.Status,
		})
	}
	if err := writeRows(f, sheetReturns, returns); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
