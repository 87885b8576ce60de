package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/feedopt/feedopt/pkg/formulation"
)

func sampleReport() formulation.Report {
	return formulation.Normalize(formulation.Result{
		Status:        "Optimal",
		TotalCost:     1234.56789,
		Inclusions:    []formulation.Weight{{Material: "corn", Percent: 62.123456}, {Material: "soy", Percent: 37.876544}, {Material: "oil", Percent: 0}},
		Costs:         map[string]float64{"corn": 700.1},
		HasCosts:      true,
		Conference:    []formulation.NutrientValue{{Nutrient: "protein", Value: 18.00004}, {Nutrient: "energy", Value: 3000}},
		HasConference: true,
	})
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "Material,Weight (%),Cost\n" +
		"corn,62.1235,700.1000\n" +
		"soy,37.8765,-\n" +
		"\n" +
		"Nutrient,Value\n" +
		"protein,18.0000\n" +
		"energy,3000.0000\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSVWithoutNutrients(t *testing.T) {
	rep := formulation.Normalize(formulation.Result{
		Status:     "Optimal",
		Inclusions: []formulation.Weight{{Material: "corn, ground", Percent: 100}},
	})
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rep); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "Material,Weight (%),Cost\n" +
		"\"corn, ground\",100.0000,-\n" +
		"\n" +
		"Nutrient,Value\n" +
		"no data\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

// csvWeights reads the formulation table back from a CSV export.
func csvWeights(t *testing.T, data []byte) map[string]float64 {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	out := map[string]float64{}
	for _, rec := range records[1:] {
		if rec[0] == "Nutrient" {
			break
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			t.Fatalf("weight %q: %v", rec[1], err)
		}
		out[rec[0]] = v
	}
	return out
}

func xlsxWeights(t *testing.T, data []byte) map[string]float64 {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(formulationSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if diff := cmp.Diff(formulationHeader, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	out := map[string]float64{}
	for _, row := range rows[1:] {
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			t.Fatalf("weight %q: %v", row[1], err)
		}
		out[row[0]] = v
	}
	return out
}

func TestExportedWeightsAgree(t *testing.T) {
	rep := sampleReport()
	var csvBuf, xlsxBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, rep); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if err := WriteXLSX(&xlsxBuf, rep); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	want := map[string]float64{}
	for _, inc := range rep.Inclusions {
		want[inc.Material] = formulation.Round(inc.Percent)
	}
	if diff := cmp.Diff(want, csvWeights(t, csvBuf.Bytes())); diff != "" {
		t.Errorf("csv weights (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, xlsxWeights(t, xlsxBuf.Bytes())); diff != "" {
		t.Errorf("xlsx weights (-want +got):\n%s", diff)
	}
}

func TestWriteXLSXNutrientSheet(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, formulation.Normalize(formulation.Result{Status: "Optimal"})); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if diff := cmp.Diff([]string{formulationSheet, nutrientSheet}, f.GetSheetList()); diff != "" {
		t.Errorf("sheets (-want +got):\n%s", diff)
	}
	v, err := f.GetCellValue(nutrientSheet, "A2")
	if err != nil || v != formulation.NoData {
		t.Errorf("A2 = %q, %v; want %q", v, err, formulation.NoData)
	}
}

func TestWritePDF(t *testing.T) {
	for name, rep := range map[string]formulation.Report{
		"full":  sampleReport(),
		"empty": formulation.Normalize(formulation.Result{}),
		"single": formulation.Normalize(formulation.Result{
			Status:     "Optimal",
			Inclusions: []formulation.Weight{{Material: "milho grão", Percent: 100}},
		}),
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePDF(&buf, rep); err != nil {
				t.Fatalf("WritePDF: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
				t.Errorf("output does not start with a PDF header: %q", buf.Bytes()[:min(8, buf.Len())])
			}
		})
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Status: Optimal | Cost: 1234.5679", "corn", "700.1000", "soy", "protein", "18.0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"XLSX", FormatXLSX, false},
		{".pdf", FormatPDF, false},
		{"txt", FormatText, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if FormatPDF.ContentType() != "application/pdf" || FormatXLSX.Extension() != ".xlsx" {
		t.Error("unexpected format metadata")
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		rep  formulation.Report
		want string
	}{
		{"solved", formulation.Report{Status: "Optimal", TotalCost: 12.5}, "Status: Optimal | Cost: 12.5000"},
		{"empty status", formulation.Report{}, "Status: Undefined | Cost: 0.0000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusLine(tc.rep); got != tc.want {
				t.Errorf("StatusLine = %q, want %q", got, tc.want)
			}
		})
	}
}
