package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	resultSheet = "Result"
	querySheet  = "Query"
)

var ErrNoResult = errors.New("message has no result table")

type Table struct {
	Columns []string
	Rows    [][]any
	SQL     string
}

// WriteXLSX writes the table to a workbook with the rows on the first sheet and the
// statement that produced them on a second.
func WriteXLSX(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return ErrNoResult
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(resultSheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
	if err := f.SetCellStyle(resultSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(resultSheet, cell, &r); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	if t.SQL != "" {
		if _, err := f.NewSheet(querySheet); err != nil {
			return err
		}
		if err := f.SetCellValue(querySheet, "A1", t.SQL); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
