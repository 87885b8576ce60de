package report

import (
	"io"
	"math"

	"github.com/go-pdf/fpdf"

	"github.com/feedopt/feedopt/pkg/formulation"
)

const (
	pdfTitle     = "Feed formulation report"
	pdfMargin    = 15.0
	pieRadius    = 35.0
	pieSegments  = 64
	rowHeight    = 7.0
	materialColW = 90.0
	valueColW    = 45.0
)

// Slice colours, reused cyclically.
var palette = [][3]int{
	{31, 119, 180}, {255, 127, 14}, {44, 160, 44}, {214, 39, 40},
	{148, 103, 189}, {140, 86, 75}, {227, 119, 194}, {127, 127, 127},
	{188, 189, 34}, {23, 190, 207},
}

// WritePDF lays the report out on an A4 page: title, status, total cost, a
// pie chart of the inclusions, then the formulation and nutrient tables.
func WritePDF(w io.Writer, r formulation.Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(pdfTitle, true)
	pdf.SetCreator("feedopt", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, pdfTitle, "", 1, "L", false, 0, "")

	status := r.Status
	if status == "" {
		status = "Undefined"
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, rowHeight, tr("Status: "+status), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, rowHeight, "Total cost: "+formulation.FormatValue(r.TotalCost), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(r.Pie) > 0 {
		drawPie(pdf, tr, r.Pie)
	}

	section(pdf, "Formulation")
	tableHeader(pdf, formulationHeader)
	if len(r.Rows) == 0 {
		pdf.CellFormat(materialColW+2*valueColW, rowHeight, formulation.NoData, "1", 1, "L", false, 0, "")
	}
	for _, row := range r.Rows {
		pdf.CellFormat(materialColW, rowHeight, tr(row.Material), "1", 0, "L", false, 0, "")
		pdf.CellFormat(valueColW, rowHeight, formulation.FormatWeight(row.Weight), "1", 0, "R", false, 0, "")
		pdf.CellFormat(valueColW, rowHeight, formulation.FormatCost(row.Cost), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	section(pdf, "Nutrients")
	tableHeader(pdf, nutrientHeader)
	if !r.NutrientsAvailable {
		pdf.CellFormat(materialColW+valueColW, rowHeight, formulation.NoData, "1", 1, "L", false, 0, "")
	}
	for _, n := range r.Nutrients {
		pdf.CellFormat(materialColW, rowHeight, tr(n.Nutrient), "1", 0, "L", false, 0, "")
		pdf.CellFormat(valueColW, rowHeight, formulation.FormatValue(n.Value), "1", 1, "R", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func section(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func tableHeader(pdf *fpdf.Fpdf, cols []string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		width, align := valueColW, "R"
		if i == 0 {
			width, align = materialColW, "L"
		}
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(width, rowHeight, c, "1", ln, align, true, 0, "")
	}
	pdf.SetFont("Helvetica", "", 10)
}

// drawPie draws one filled polygon per slice plus a legend to its right.
func drawPie(pdf *fpdf.Fpdf, tr func(string) string, slices []formulation.PieSlice) {
	_, top := pdf.GetXY()
	cx := pdfMargin + pieRadius
	cy := top + pieRadius

	start := -math.Pi / 2
	for i, s := range slices {
		sweep := s.Share * 2 * math.Pi
		c := palette[i%len(palette)]
		pdf.SetFillColor(c[0], c[1], c[2])
		pdf.SetDrawColor(255, 255, 255)
		pdf.Polygon(wedge(cx, cy, pieRadius, start, sweep), "FD")
		start += sweep
	}
	pdf.SetDrawColor(0, 0, 0)

	lx := cx + pieRadius + 15
	ly := top + 2
	pdf.SetFont("Helvetica", "", 10)
	for i, s := range slices {
		c := palette[i%len(palette)]
		pdf.SetFillColor(c[0], c[1], c[2])
		pdf.Rect(lx, ly+1, 4, 4, "F")
		pdf.SetXY(lx+6, ly)
		label := tr(s.Label) + "  " + formulation.FormatValue(s.Share*100) + "%"
		pdf.CellFormat(0, 6, label, "", 0, "L", false, 0, "")
		ly += 6
	}

	bottom := math.Max(cy+pieRadius, ly) + 6
	pdf.SetXY(pdfMargin, bottom)
}

func wedge(cx, cy, radius, start, sweep float64) []fpdf.PointType {
	n := int(math.Ceil(sweep / (2 * math.Pi) * pieSegments))
	if n < 1 {
		n = 1
	}
	pts := make([]fpdf.PointType, 0, n+2)
	if sweep < 2*math.Pi-1e-9 {
		pts = append(pts, fpdf.PointType{X: cx, Y: cy})
	}
	for i := 0; i <= n; i++ {
		a := start + sweep*float64(i)/float64(n)
		pts = append(pts, fpdf.PointType{X: cx + radius*math.Cos(a), Y: cy + radius*math.Sin(a)})
	}
	return pts
}
