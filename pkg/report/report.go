// Package report renders normalized formulation reports to files.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/feedopt/feedopt/pkg/formulation"
)

type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Formats lists the file formats reports can be exported to.
var Formats = []Format{FormatCSV, FormatXLSX, FormatPDF}

const (
	formulationSheet = "Formulation"
	nutrientSheet    = "Nutrients"
)

var (
	formulationHeader = []string{"Material", "Weight (%)", "Cost"}
	nutrientHeader    = []string{"Nutrient", "Value"}
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatText, FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (use csv, xlsx or pdf)", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (f Format) Extension() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

// Write renders r in the given format.
func Write(f Format, w io.Writer, r formulation.Report) error {
	switch f {
	case FormatText:
		return WriteText(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatPDF:
		return WritePDF(w, r)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// StatusLine summarizes a report on one line.
func StatusLine(r formulation.Report) string {
	status := r.Status
	if status == "" {
		status = "Undefined"
	}
	return fmt.Sprintf("Status: %s | Cost: %s", status, formulation.FormatValue(r.TotalCost))
}
