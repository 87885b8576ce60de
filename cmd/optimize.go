package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/gateway"
	"github.com/feedopt/feedopt/pkg/report"
)

const defaultCostCeiling = 9999

// constraintFile is the YAML layout accepted by optimize -f. Structured
// constraints come first, then the compact material and nutrient forms, in
// file order.
type constraintFile struct {
	CostMax     *float64         `yaml:"cost_max"`
	Constraints []constraintSpec `yaml:"constraints"`
	Materials   []string         `yaml:"materials"`
	Nutrients   []string         `yaml:"nutrients"`
}

type constraintSpec struct {
	Kind     string  `yaml:"kind"`
	Subject  string  `yaml:"subject"`
	Relation string  `yaml:"relation"`
	Value    float64 `yaml:"value"`
}

func readConstraintFile(path string) (constraintFile, error) {
	var f constraintFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// constraints turns the file and flag inputs into constraints, rejecting
// subjects outside vocab. A nil vocab skips that check.
func (f constraintFile) constraints(materials, nutrients []string, vocab *formulation.Vocabulary) ([]formulation.Constraint, error) {
	var out []formulation.Constraint
	add := func(c formulation.Constraint) error {
		if vocab != nil && !vocab.Contains(c.Kind(), c.Subject()) {
			return fmt.Errorf("%s %q is not in the catalog", c.Kind(), c.Subject())
		}
		out = append(out, c)
		return nil
	}

	for _, spec := range f.Constraints {
		kind, err := formulation.ParseKind(spec.Kind)
		if err != nil {
			return nil, err
		}
		rel := formulation.DefaultRelation(kind)
		if spec.Relation != "" {
			if rel, err = formulation.ParseRelation(spec.Relation); err != nil {
				return nil, err
			}
		}
		if err := add(formulation.NewConstraint(kind, spec.Subject, rel, spec.Value)); err != nil {
			return nil, err
		}
	}

	compact := []struct {
		kind  formulation.Kind
		exprs []string
	}{
		{formulation.KindMaterial, append(append([]string{}, f.Materials...), materials...)},
		{formulation.KindNutrient, append(append([]string{}, f.Nutrients...), nutrients...)},
	}
	for _, group := range compact {
		for _, expr := range group.exprs {
			c, err := formulation.ParseConstraint(group.kind, expr)
			if err != nil {
				return nil, err
			}
			if err := add(c); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Solve a least-cost formulation",
	Long: `Builds the constraint list from a YAML file and/or flags, submits it to the
optimization service and prints the resulting formulation.

Example:
  feedopt optimize --material "corn<=60" --nutrient "protein>=18" --cost-max 500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		materialExprs, _ := cmd.Flags().GetStringArray("material")
		nutrientExprs, _ := cmd.Flags().GetStringArray("nutrient")

		var file constraintFile
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			var err error
			if file, err = readConstraintFile(path); err != nil {
				return err
			}
		}
		costMax := float64(defaultCostCeiling)
		if file.CostMax != nil {
			costMax = *file.CostMax
		}
		if cmd.Flags().Changed("cost-max") {
			costMax, _ = cmd.Flags().GetFloat64("cost-max")
		}

		gw, err := newGateway()
		if err != nil {
			return err
		}
		remote, err := gw.FetchCatalog(ctx)
		if err != nil && !dryRun {
			return errors.New(gateway.StatusMessage(err))
		}
		catalogOK := err == nil
		if !catalogOK {
			utils.Log.Warnf("Could not fetch the catalog, subjects are not checked: %s", gateway.StatusMessage(err))
		}

		db, dbPath, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		materials, err := loadMaterials(ctx, db, dbPath)
		if err != nil {
			return err
		}

		var vocab *formulation.Vocabulary
		if catalogOK {
			merged := materials.Merge(remote)
			vocab = &merged
		}
		constraints, err := file.constraints(materialExprs, nutrientExprs, vocab)
		if err != nil {
			return err
		}

		store := formulation.NewStore(materials.Merge(remote))
		for _, c := range constraints {
			store.Append(c)
		}
		req := formulation.Compile(store.Entries(), costMax, materials.Extras(remote))

		if dryRun {
			out, err := json.MarshalIndent(req, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		utils.Log.WithField("constraints", store.Len()).Debug("submitting optimization")
		opt, err := gw.SubmitOptimization(ctx, req)
		if err != nil {
			return errors.New(gateway.StatusMessage(err))
		}
		if err := utils.WithLock(dbPath, func() error { return db.SaveLastResult(ctx, opt.Raw) }); err != nil {
			utils.Log.Errorf("Could not store the result: %v", err)
		}
		return report.WriteText(os.Stdout, formulation.Normalize(opt.Result))
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringP("file", "f", "", "YAML file with constraints")
	optimizeCmd.Flags().StringArray("material", nil, `Raw material constraint, e.g. "corn<=60" (repeatable)`)
	optimizeCmd.Flags().StringArray("nutrient", nil, `Nutrient constraint, e.g. "protein>=18" (repeatable)`)
	optimizeCmd.Flags().Float64("cost-max", defaultCostCeiling, "Maximum total cost")
	optimizeCmd.Flags().Bool("dry-run", false, "Print the request instead of sending it")
}
