package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/formulation"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the feedopt database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("db.path"))
		if err != nil {
			return err
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints what the local database holds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, path, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		materials, err := loadMaterials(ctx, db, path)
		if err != nil {
			return err
		}
		raw, ok, err := db.LastResult(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "DATABASE\t%s\t\n", path)
		fmt.Fprintf(w, "LOCAL MATERIALS\t%d\t\n", len(materials.List()))
		if !ok {
			fmt.Fprintf(w, "LAST RESULT\t%s\t\n", formulation.NoData)
			return w.Flush()
		}
		res, err := formulation.ParseResult(raw)
		if err != nil {
			fmt.Fprintf(w, "LAST RESULT\tunreadable (%v)\t\n", err)
			return w.Flush()
		}
		fmt.Fprintf(w, "LAST RESULT\t%s, cost %s\t\n", res.Status, formulation.FormatValue(res.TotalCost))
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
}
