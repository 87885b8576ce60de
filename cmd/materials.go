package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/catalog"
	"github.com/feedopt/feedopt/pkg/formulation"
)

var materialsCmd = &cobra.Command{
	Use:   "materials",
	Short: "Manage locally registered raw materials",
	Long: `Local raw materials are stored in the feedopt database and sent along with
every optimization request when the service does not already know them.`,
}

var materialsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register or replace a local raw material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, _ := cmd.Flags().GetFloat64("cost")
		pairs, _ := cmd.Flags().GetStringArray("nutrient")
		nutrients, err := utils.ParseAssignments(pairs)
		if err != nil {
			return err
		}
		m := catalog.RawMaterial{Name: args[0], CostPerUnit: cost, Nutrients: nutrients}

		return withMaterials(func(ctx context.Context, store *catalog.Store) error {
			if err := store.Add(ctx, m); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", strings.TrimSpace(m.Name))
			return nil
		})
	},
}

var materialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local raw materials",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, path, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		store, err := loadMaterials(context.Background(), db, path)
		if err != nil {
			return err
		}

		materials := store.List()
		if len(materials) == 0 {
			fmt.Println("No local raw materials.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tCOST\tNUTRIENTS\t")
		for _, m := range materials {
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", m.Name, formulation.FormatValue(m.CostPerUnit), formatNutrients(m.Nutrients))
		}
		return w.Flush()
	},
}

var materialsRemoveCmd = &cobra.Command{
	Use:     "rm NAME",
	Aliases: []string{"remove"},
	Short:   "Remove a local raw material",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMaterials(func(ctx context.Context, store *catalog.Store) error {
			if err := store.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

// withMaterials runs fn against the local catalog. The store takes the
// database lock itself for each change.
func withMaterials(fn func(ctx context.Context, store *catalog.Store) error) error {
	db, path, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	store, err := loadMaterials(ctx, db, path)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func formatNutrients(n map[string]float64) string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(n[k], 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(materialsCmd)
	materialsCmd.AddCommand(materialsAddCmd)
	materialsCmd.AddCommand(materialsListCmd)
	materialsCmd.AddCommand(materialsRemoveCmd)

	materialsAddCmd.Flags().Float64("cost", 0, "Cost per unit (required, zero or more)")
	materialsAddCmd.Flags().StringArray("nutrient", nil, "Nutrient content as name=value (repeatable)")
	materialsAddCmd.MarkFlagRequired("cost")
}
