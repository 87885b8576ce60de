package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/feedopt/feedopt/pkg/formulation"
)

func TestConstraintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diet.yaml")
	data := `
cost_max: 500
constraints:
  - kind: nutrient
    subject: protein
    relation: ">="
    value: 18
  - kind: material
    subject: corn
    value: 70
materials:
  - corn<=60
nutrients:
  - energy>=2900
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := readConstraintFile(path)
	if err != nil {
		t.Fatalf("readConstraintFile: %v", err)
	}
	if f.CostMax == nil || *f.CostMax != 500 {
		t.Fatalf("cost_max = %v", f.CostMax)
	}

	vocab := formulation.Vocabulary{Materials: []string{"corn", "soy"}, Nutrients: []string{"protein", "energy"}}
	cs, err := f.constraints([]string{"soy>=10"}, nil, &vocab)
	if err != nil {
		t.Fatalf("constraints: %v", err)
	}

	store := formulation.NewStore(vocab)
	for _, c := range cs {
		store.Append(c)
	}
	req := formulation.Compile(store.Entries(), *f.CostMax, nil)
	got, _ := json.Marshal(req)
	// The later corn<=60 overwrites the upper bound set by the structured entry.
	expect := `{"metas":{"energy":[2900,null],"protein":[18,null]},"restricoes":{"corn":[null,60],"soy":[10,null]},"custo_max":500}`
	if string(got) != expect {
		t.Fatalf("unexpected request.\nwant: %s\ngot:  %s", expect, got)
	}
}

func TestConstraintsRejectUnknownSubjects(t *testing.T) {
	vocab := formulation.Vocabulary{Materials: []string{"corn"}, Nutrients: []string{"protein"}}
	if _, err := (constraintFile{}).constraints([]string{"gold<=5"}, nil, &vocab); err == nil {
		t.Fatal("expected an error for a material outside the catalog")
	}
	if _, err := (constraintFile{}).constraints(nil, []string{"protein>>3"}, &vocab); err == nil {
		t.Fatal("expected an error for a malformed expression")
	}
	// Without a catalog, subjects are taken as given.
	cs, err := (constraintFile{}).constraints([]string{"gold<=5"}, nil, nil)
	if err != nil || len(cs) != 1 {
		t.Fatalf("got %v, %v", cs, err)
	}
}

func TestBuildDraft(t *testing.T) {
	d, rejected := buildDraft([]string{"corn", "soy", "oil"}, map[string]float64{"corn": 60, "soy": 50, "gold": 1, "oil": 5})

	expect := formulation.Draft{"corn": 60, "soy": 0, "oil": 5}
	if !reflect.DeepEqual(d, expect) {
		t.Fatalf("unexpected draft.\nwant: %#v\ngot:  %#v", expect, d)
	}
	if len(rejected) != 2 {
		t.Fatalf("rejected = %v, want gold and soy", rejected)
	}
	if !errors.Is(rejected[1], formulation.ErrCompositionExceeded) {
		t.Errorf("soy rejection = %v", rejected[1])
	}
}
