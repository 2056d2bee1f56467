package output

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"profit-engine/core/determinism"
	"profit-engine/core/types"
)

// Sheet names in the workbook.
const (
	SheetData    = "Data"
	SheetSummary = "Summary"
	SheetSkipped = "Skipped"
)

// numFmtThousands is Excel's built-in "#,##0.00".
const numFmtThousands = 4

// XLSXFormatter writes an Excel workbook: the long-format rows on a Data
// sheet, run metadata and metric totals on a Summary sheet, and skipped
// records on a Skipped sheet when there are any.
type XLSXFormatter struct {
	opts Options
}

// NewXLSXFormatter creates an Excel formatter.
func NewXLSXFormatter(opts Options) *XLSXFormatter {
	return &XLSXFormatter{opts: opts}
}

// Format returns FormatXLSX.
func (f *XLSXFormatter) Format() Format { return FormatXLSX }

// Render writes the workbook to w.
func (f *XLSXFormatter) Render(w io.Writer, report *types.Report) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", SheetData); err != nil {
		return err
	}
	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := book.NewStyle(&excelize.Style{NumFmt: numFmtThousands})
	if err != nil {
		return err
	}

	if err := f.writeData(book, report, bold, money); err != nil {
		return fmt.Errorf("data sheet: %w", err)
	}
	if err := f.writeSummary(book, report, bold); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if len(report.Skipped) > 0 {
		if err := writeSkipped(book, report.Skipped, bold); err != nil {
			return fmt.Errorf("skipped sheet: %w", err)
		}
	}
	return book.Write(w)
}

func (f *XLSXFormatter) writeData(book *excelize.File, report *types.Report, bold, money int) error {
	if err := book.SetSheetRow(SheetData, "A1", &types.Columns); err != nil {
		return err
	}
	if err := book.SetRowStyle(SheetData, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			row.Year,
			row.Category,
			row.EAN,
			row.ChannelClient,
			row.Account,
			row.Metric.String(),
			f.number(row.Value),
		}
		if err := book.SetSheetRow(SheetData, cell, &values); err != nil {
			return err
		}
	}
	if n := len(report.Rows); n > 0 {
		if err := book.SetCellStyle(SheetData, "G2", fmt.Sprintf("G%d", n+1), money); err != nil {
			return err
		}
	}
	if err := book.SetColWidth(SheetData, "A", "G", 16); err != nil {
		return err
	}
	return book.SetPanes(SheetData, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (f *XLSXFormatter) writeSummary(book *excelize.File, report *types.Report, bold int) error {
	if _, err := book.NewSheet(SheetSummary); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Run ID", report.RunID},
		{"Currency", string(report.Currency)},
		{"Fingerprint", report.Fingerprint},
		{"Records", report.Stats.Records},
		{"Rows", report.Stats.Rows},
		{"Skipped", report.Stats.Skipped},
		{"Spend fallback", report.Stats.SpendFallback},
		{"Rate warnings", report.Stats.RateWarnings},
		{},
		{"Metric", "Total"},
	}
	for _, m := range determinism.SortedMetrics(report.Stats.Totals) {
		rows = append(rows, []interface{}{m.String(), f.number(report.Stats.Totals[m])})
	}
	for i := range rows {
		if len(rows[i]) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow(SheetSummary, cell, &rows[i]); err != nil {
			return err
		}
	}
	if err := book.SetCellStyle(SheetSummary, "A1", "A8", bold); err != nil {
		return err
	}
	if err := book.SetRowStyle(SheetSummary, 10, 10, bold); err != nil {
		return err
	}
	return book.SetColWidth(SheetSummary, "A", "B", 20)
}

func writeSkipped(book *excelize.File, skipped []types.SkippedRecord, bold int) error {
	if _, err := book.NewSheet(SheetSkipped); err != nil {
		return err
	}
	header := []string{"Index", "Line", "Record", "Reason"}
	if err := book.SetSheetRow(SheetSkipped, "A1", &header); err != nil {
		return err
	}
	if err := book.SetRowStyle(SheetSkipped, 1, 1, bold); err != nil {
		return err
	}
	for i, s := range skipped {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{s.Index, s.Line, s.Record.String(), s.Reason}
		if err := book.SetSheetRow(SheetSkipped, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// number converts a value to a spreadsheet number at the configured
// precision.
func (f *XLSXFormatter) number(v decimal.Decimal) float64 {
	if f.opts.Precision >= 0 {
		v = v.Round(f.opts.Precision)
	}
	return v.InexactFloat64()
}
