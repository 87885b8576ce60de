package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/gateway"
	"github.com/feedopt/feedopt/pkg/report"
)

// buildDraft applies the assignments to a zeroed draft one at a time, in
// name order, through the composition guard. Rejected assignments are
// collected and leave the draft unchanged.
func buildDraft(materials []string, set map[string]float64) (formulation.Draft, []error) {
	d := formulation.NewDraft(materials)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	var rejected []error
	for _, name := range names {
		if _, ok := d[name]; !ok {
			rejected = append(rejected, fmt.Errorf("%s: not in the catalog", name))
			continue
		}
		next, err := formulation.ProposeUpdate(d, name, set[name])
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		d = next
	}
	return d, rejected
}

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Evaluate a fixed composition",
	Long: `Sends a manually specified composition to the service and prints its cost
and nutrient levels. Shares are percentages and may not add up to more than 100.

Example:
  feedopt consult --set corn=60 --set soy=35`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pairs, _ := cmd.Flags().GetStringArray("set")
		set, err := utils.ParseAssignments(pairs)
		if err != nil {
			return err
		}

		gw, err := newGateway()
		if err != nil {
			return err
		}
		vocab, err := gw.FetchCatalog(ctx)
		if err != nil {
			return errors.New(gateway.StatusMessage(err))
		}

		d, rejected := buildDraft(vocab.Materials, set)
		for _, err := range rejected {
			fmt.Fprintf(os.Stderr, "Rejected: %v\n", err)
		}
		fmt.Printf("Composition total: %s%% (remaining %s%%)\n",
			formulation.FormatValue(d.Total()), formulation.FormatValue(d.Remaining()))

		cons, err := gw.SubmitConsultation(ctx, d)
		if err != nil {
			return errors.New(gateway.StatusMessage(err))
		}
		return report.WriteText(os.Stdout, formulation.NormalizeConsultation(cons, d))
	},
}

func init() {
	rootCmd.AddCommand(consultCmd)
	consultCmd.Flags().StringArray("set", nil, "Raw material share as name=percent (repeatable)")
}
