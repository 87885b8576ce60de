package report

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/feedopt/feedopt/pkg/formulation"
)

// WriteXLSX writes a workbook with a Formulation and a Nutrients sheet.
// Figures are stored as numbers rounded to formulation.Precision.
func WriteXLSX(w io.Writer, r formulation.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", formulationSheet); err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(r.Rows)+1)
	rows = append(rows, header(formulationHeader))
	for _, row := range r.Rows {
		var cost interface{} = formulation.CostPlaceholder
		if row.Cost != nil {
			cost = formulation.Round(*row.Cost)
		}
		rows = append(rows, []interface{}{row.Material, formulation.Round(row.Weight), cost})
	}
	if err := writeRows(f, formulationSheet, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(nutrientSheet); err != nil {
		return err
	}
	rows = [][]interface{}{header(nutrientHeader)}
	if !r.NutrientsAvailable {
		rows = append(rows, []interface{}{formulation.NoData})
	}
	for _, n := range r.Nutrients {
		rows = append(rows, []interface{}{n.Nutrient, formulation.Round(n.Value)})
	}
	if err := writeRows(f, nutrientSheet, rows); err != nil {
		return err
	}

	return f.Write(w)
}

func header(cols []string) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
