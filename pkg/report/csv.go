package report

import (
	"encoding/csv"
	"io"

	"github.com/feedopt/feedopt/pkg/formulation"
)

// WriteCSV writes the formulation table, a blank line, then the nutrient
// table.
func WriteCSV(w io.Writer, r formulation.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(formulationHeader); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := []string{row.Material, formulation.FormatWeight(row.Weight), formulation.FormatCost(row.Cost)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}

	if err := cw.Write(nutrientHeader); err != nil {
		return err
	}
	if !r.NutrientsAvailable {
		if err := cw.Write([]string{formulation.NoData}); err != nil {
			return err
		}
	}
	for _, n := range r.Nutrients {
		if err := cw.Write([]string{n.Nutrient, formulation.FormatValue(n.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
