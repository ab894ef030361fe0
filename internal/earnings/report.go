package earnings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	transactionsSheet = "Transactions"
)

// BuildReport renders the summary and the transaction list into a workbook.
// The caller owns the returned file and must close it.
func BuildReport(s Summary, txs []Transaction) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	index, err := f.NewSheet(transactionsSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	header, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	rows := [][2]interface{}{
		{"Total earnings", s.Total.InexactFloat64()},
		{"This month", s.Monthly.InexactFloat64()},
		{"This week", s.Weekly.InexactFloat64()},
		{"Pending", s.Pending.InexactFloat64()},
		{"Completed jobs", s.CompletedJobs},
		{"Average per job", s.AveragePerJob.InexactFloat64()},
		{"Repeat customers, %", s.RepeatCustomers.InexactFloat64()},
	}
	for i, r := range rows {
		row := i + 1
		_ = f.SetCellValue(summarySheet, cell(1, row), r[0])
		_ = f.SetCellValue(summarySheet, cell(2, row), r[1])
		_ = f.SetCellStyle(summarySheet, cell(1, row), cell(1, row), header)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)

	for col, title := range []string{"Booking", "Date", "Description", "Amount", "Status"} {
		_ = f.SetCellValue(transactionsSheet, cell(col+1, 1), title)
	}
	_ = f.SetCellStyle(transactionsSheet, "A1", "E1", header)
	for i, tx := range txs {
		row := i + 2
		_ = f.SetCellValue(transactionsSheet, cell(1, row), tx.BookingID)
		_ = f.SetCellValue(transactionsSheet, cell(2, row), string(tx.Date))
		_ = f.SetCellValue(transactionsSheet, cell(3, row), tx.Description)
		_ = f.SetCellValue(transactionsSheet, cell(4, row), tx.Amount.InexactFloat64())
		_ = f.SetCellValue(transactionsSheet, cell(5, row), tx.Status.Label())
	}
	_ = f.SetColWidth(transactionsSheet, "B", "B", 12)
	_ = f.SetColWidth(transactionsSheet, "C", "C", 40)

	f.SetActiveSheet(index)
	return f, nil
}

// WriteReport saves the workbook at path, creating parent directories.
func WriteReport(path string, s Summary, txs []Transaction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := BuildReport(s, txs)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
