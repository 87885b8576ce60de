package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/feedopt/feedopt/pkg/formulation"
)

// WriteText prints the report as aligned terminal tables.
func WriteText(w io.Writer, r formulation.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	fmt.Fprintln(tw, StatusLine(r))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, strings.Join(formulationHeader, "\t"))
	if len(r.Rows) == 0 {
		fmt.Fprintln(tw, formulation.NoData)
	}
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Material, formulation.FormatWeight(row.Weight), formulation.FormatCost(row.Cost))
	}
	if len(r.Rows) > 0 {
		fmt.Fprintf(tw, "Total\t%s\t%s\n", formulation.FormatWeight(r.WeightTotal), formulation.FormatValue(r.TotalCost))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, strings.Join(nutrientHeader, "\t"))
	if !r.NutrientsAvailable {
		fmt.Fprintln(tw, formulation.NoData)
	}
	for _, n := range r.Nutrients {
		fmt.Fprintf(tw, "%s\t%s\n", n.Nutrient, formulation.FormatValue(n.Value))
	}
	return tw.Flush()
}
