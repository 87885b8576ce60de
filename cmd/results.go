package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/report"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show the last optimization result",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := lastReport()
		if err != nil {
			return err
		}
		return report.WriteText(os.Stdout, rep)
	},
}

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the last optimization result to CSV, XLSX or PDF",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(name)
		if err != nil {
			return err
		}
		rep, err := lastReport()
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := report.Write(format, &buf, rep); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = "formulation" + format.Extension()
		}
		if out == "-" {
			_, err := os.Stdout.Write(buf.Bytes())
			return err
		}
		if err := writeFile(out, buf.Bytes()); err != nil {
			return err
		}
		fmt.Printf("Report saved to %s\n", out)
		return nil
	},
}

func lastReport() (formulation.Report, error) {
	db, _, err := openDB()
	if err != nil {
		return formulation.Report{}, err
	}
	defer db.Close()

	raw, ok, err := db.LastResult(context.Background())
	if err != nil {
		return formulation.Report{}, err
	}
	if !ok {
		return formulation.Report{}, fmt.Errorf("no stored result, run feedopt optimize first")
	}
	res, err := formulation.ParseResult(raw)
	if err != nil {
		return formulation.Report{}, fmt.Errorf("stored result: %w", err)
	}
	return formulation.Normalize(res), nil
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsExportCmd)
	resultsExportCmd.Flags().String("format", "csv", "Report format: csv, xlsx or pdf")
	resultsExportCmd.Flags().StringP("output", "o", "", `Output file ("-" for stdout, default formulation.<format>)`)
}
