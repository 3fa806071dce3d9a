package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/platterworks/drivebatch/drivepipe"
)

const (
	drivesSheet = "Drives"
	errorsSheet = "Errors"
)

// WriteXLSX writes the batch result as an Excel workbook: a Drives sheet in
// the fixed column order, plus an Errors sheet when the batch carried parse
// errors.
func WriteXLSX(w io.Writer, res *drivepipe.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", drivesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSheet(f, drivesSheet, Headers, groupRows(res.Groups)); err != nil {
		return err
	}

	if len(res.Errors) > 0 {
		if _, err := f.NewSheet(errorsSheet); err != nil {
			return fmt.Errorf("add errors sheet: %w", err)
		}
		rows := make([][]string, len(res.Errors))
		for i := range res.Errors {
			rows[i] = errorRow(&res.Errors[i])
		}
		if err := writeSheet(f, errorsSheet, ErrorHeaders, rows); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func groupRows(groups []drivepipe.ReconciliationGroup) [][]string {
	sorted := sortedGroups(groups)
	rows := make([][]string, len(sorted))
	for i := range sorted {
		rows[i] = driveRow(&sorted[i])
	}
	return rows
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(sheet, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, cells []string) error {
	vals := make([]any, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("set row %d on %s: %w", n, sheet, err)
	}
	return nil
}
