package formulation

import (
	"fmt"
	"strings"
)

// Kind tells which vocabulary a constraint subject is drawn from.
type Kind int

const (
	KindMaterial Kind = iota
	KindNutrient
)

func (k Kind) String() string {
	switch k {
	case KindMaterial:
		return "material"
	case KindNutrient:
		return "nutrient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names used on the command line and by the local API.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "material", "materials", "mp":
		return KindMaterial, nil
	case "nutrient", "nutrients", "nutriente":
		return KindNutrient, nil
	}
	return 0, fmt.Errorf("unknown constraint kind %q", s)
}

// Relation is the relational operator of a constraint.
type Relation string

const (
	AtMost  Relation = "<="
	AtLeast Relation = ">="
	EqualTo Relation = "="
)

// ParseRelation normalizes the operator spellings accepted from users.
func ParseRelation(s string) (Relation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "<=", "≤", "le", "at-most", "max":
		return AtMost, nil
	case ">=", "≥", "ge", "at-least", "min":
		return AtLeast, nil
	case "=", "==", "eq", "equal-to":
		return EqualTo, nil
	}
	return "", fmt.Errorf("unknown relation %q", s)
}

// Constraint is either a MaterialConstraint or a NutrientConstraint.
type Constraint interface {
	Kind() Kind
	Subject() string
	Relation() Relation
	Value() float64

	with(subject string, rel Relation, value float64) Constraint
}

// MaterialConstraint bounds the inclusion percentage of a raw material.
type MaterialConstraint struct {
	Material string
	Rel      Relation
	Percent  float64
}

func (c MaterialConstraint) Kind() Kind         { return KindMaterial }
func (c MaterialConstraint) Subject() string    { return c.Material }
func (c MaterialConstraint) Relation() Relation { return c.Rel }
func (c MaterialConstraint) Value() float64     { return c.Percent }

func (c MaterialConstraint) with(subject string, rel Relation, value float64) Constraint {
	return MaterialConstraint{Material: subject, Rel: rel, Percent: value}
}

// NutrientConstraint bounds the achieved level of a nutrient, in the
// nutrient's own unit.
type NutrientConstraint struct {
	Nutrient string
	Rel      Relation
	Amount   float64
}

func (c NutrientConstraint) Kind() Kind         { return KindNutrient }
func (c NutrientConstraint) Subject() string    { return c.Nutrient }
func (c NutrientConstraint) Relation() Relation { return c.Rel }
func (c NutrientConstraint) Value() float64     { return c.Amount }

func (c NutrientConstraint) with(subject string, rel Relation, value float64) Constraint {
	return NutrientConstraint{Nutrient: subject, Rel: rel, Amount: value}
}

// NewConstraint builds the variant matching kind.
func NewConstraint(kind Kind, subject string, rel Relation, value float64) Constraint {
	if kind == KindNutrient {
		return NutrientConstraint{Nutrient: subject, Rel: rel, Amount: value}
	}
	return MaterialConstraint{Material: subject, Rel: rel, Percent: value}
}

// DefaultRelation is the relation a freshly added entry of kind starts with.
func DefaultRelation(kind Kind) Relation {
	if kind == KindNutrient {
		return AtLeast
	}
	return AtMost
}

// ParseConstraint reads the compact "subject<=value" form used by the CLI.
func ParseConstraint(kind Kind, expr string) (Constraint, error) {
	i := strings.IndexAny(expr, "<>=≤≥")
	if i <= 0 || strings.TrimSpace(expr[:i]) == "" {
		return nil, fmt.Errorf("constraint %q: expected <subject><op><value>", expr)
	}
	for _, op := range []string{"<=", ">=", "≤", "≥", "="} {
		if !strings.HasPrefix(expr[i:], op) {
			continue
		}
		rel, err := ParseRelation(op)
		if err != nil {
			return nil, err
		}
		value, err := parseValue(expr[i+len(op):])
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", expr, err)
		}
		return NewConstraint(kind, strings.TrimSpace(expr[:i]), rel, value), nil
	}
	return nil, fmt.Errorf("constraint %q: unsupported operator", expr)
}

// Vocabulary is the set of subjects offered by the remote catalog.
type Vocabulary struct {
	Materials []string `json:"materials"`
	Nutrients []string `json:"nutrients"`
}

func (v Vocabulary) names(kind Kind) []string {
	if kind == KindNutrient {
		return v.Nutrients
	}
	return v.Materials
}

// Contains reports whether subject is a known name of the given kind.
func (v Vocabulary) Contains(kind Kind, subject string) bool {
	for _, n := range v.names(kind) {
		if n == subject {
			return true
		}
	}
	return false
}

func (v Vocabulary) first(kind Kind) string {
	names := v.names(kind)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
