package formulation

import (
	"encoding/json"
	"fmt"
)

// BoundPair holds the resolved lower and upper limits of one subject. A nil
// side is unbounded. It travels as a two element array with nulls.
type BoundPair struct {
	Lower *float64
	Upper *float64
}

// Bounds is a convenience constructor; use nil for an open side.
func Bounds(lower, upper *float64) BoundPair {
	return BoundPair{Lower: lower, Upper: upper}
}

// Float returns a pointer to v, for building BoundPairs in literals.
func Float(v float64) *float64 { return &v }

func (b BoundPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*float64{b.Lower, b.Upper})
}

func (b *BoundPair) UnmarshalJSON(data []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("bound pair: %w", err)
	}
	b.Lower, b.Upper = pair[0], pair[1]
	return nil
}

func (b BoundPair) String() string {
	side := func(p *float64) string {
		if p == nil {
			return "null"
		}
		return FormatValue(*p)
	}
	return "[" + side(b.Lower) + ", " + side(b.Upper) + "]"
}

// ExtraMaterial describes a locally catalogued raw material the remote
// catalog does not know about.
type ExtraMaterial struct {
	CostPerUnit float64            `json:"custo"`
	Nutrients   map[string]float64 `json:"nutrientes"`
}

// Request is the body sent to the optimization service.
type Request struct {
	NutrientBounds map[string]BoundPair     `json:"metas"`
	MaterialBounds map[string]BoundPair     `json:"restricoes"`
	CostCeiling    float64                  `json:"custo_max"`
	ExtraMaterials map[string]ExtraMaterial `json:"materias_primas_extras,omitempty"`
}

// Compile folds the entries, in order, into a Request.
//
// Per subject: at-most fills the upper bound, at-least the lower bound and
// equal-to replaces both, discarding whatever was folded before it. A
// repeated relation overwrites the earlier value rather than keeping the
// tighter one.
func Compile(entries []Entry, costCeiling float64, extras map[string]ExtraMaterial) Request {
	req := Request{
		NutrientBounds: make(map[string]BoundPair),
		MaterialBounds: make(map[string]BoundPair),
		CostCeiling:    costCeiling,
	}
	for _, e := range entries {
		if e.Constraint == nil {
			continue
		}
		target := req.MaterialBounds
		if e.Constraint.Kind() == KindNutrient {
			target = req.NutrientBounds
		}
		subject := e.Constraint.Subject()
		target[subject] = fold(target[subject], e.Constraint.Relation(), e.Constraint.Value())
	}
	if len(extras) > 0 {
		req.ExtraMaterials = make(map[string]ExtraMaterial, len(extras))
		for name, m := range extras {
			req.ExtraMaterials[name] = m
		}
	}
	return req
}

func fold(b BoundPair, rel Relation, v float64) BoundPair {
	switch rel {
	case AtMost:
		b.Upper = Float(v)
	case AtLeast:
		b.Lower = Float(v)
	case EqualTo:
		b = BoundPair{Lower: Float(v), Upper: Float(v)}
	}
	return b
}
