package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with the optimization service's raw material catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the raw materials and nutrients the service knows",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newGateway()
		if err != nil {
			return err
		}
		vocab, err := gw.FetchCatalog(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\t")
		for _, m := range vocab.Materials {
			fmt.Fprintf(w, "material\t%s\t\n", m)
		}
		for _, n := range vocab.Nutrients {
			fmt.Fprintf(w, "nutrient\t%s\t\n", n)
		}
		return w.Flush()
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upload a raw material spreadsheet into a service session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("session")
		session, err := sessionID(flag)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		gw, err := newGateway()
		if err != nil {
			return err
		}
		msg, err := gw.ImportCatalog(context.Background(), filepath.Base(args[0]), f, session)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the raw materials of a service session",
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("session")
		session, err := sessionID(flag)
		if err != nil {
			return err
		}
		gw, err := newGateway()
		if err != nil {
			return err
		}
		d, err := gw.ExportCatalog(context.Background(), session)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = d.Filename
		}
		if err := writeFile(out, d.Data); err != nil {
			return err
		}
		fmt.Printf("Saved %d bytes to %s\n", len(d.Data), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	catalogImportCmd.Flags().String("session", "", "Service session id (default from config)")
	catalogExportCmd.Flags().String("session", "", "Service session id (default from config)")
	catalogExportCmd.Flags().StringP("output", "o", "", "Output file (default is the name the service suggests)")
}
