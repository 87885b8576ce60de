package formulation

import (
	"math"
	"sort"
)

// Epsilon absorbs floating point noise when checking the 100% ceiling.
const Epsilon = 1e-9

// Draft is a manually specified formulation: material name to percent.
type Draft map[string]float64

// NewDraft returns a draft holding every material at 0%.
func NewDraft(materials []string) Draft {
	d := make(Draft, len(materials))
	for _, m := range materials {
		d[m] = 0
	}
	return d
}

// Total is the sum of all shares.
func (d Draft) Total() float64 {
	var sum float64
	for _, v := range d {
		sum += v
	}
	return sum
}

// Remaining is what is left before reaching 100%.
func (d Draft) Remaining() float64 {
	return 100 - d.Total()
}

// Clone returns an independent copy.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Materials returns the material names in lexical order.
func (d Draft) Materials() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ProposeUpdate returns a copy of d with material set to value, or d itself
// together with an error when the aggregate would exceed 100%. There is no
// per-material cap: a single material may legitimately make up 100%.
func ProposeUpdate(d Draft, material string, value float64) (Draft, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return d, &GuardError{Material: material, Total: d.Total(), Err: ErrInvalidShare}
	}
	if value < 0 {
		return d, &GuardError{Material: material, Total: d.Total(), Err: ErrNegativeShare}
	}
	var others float64
	for k, v := range d {
		if k != material {
			others += v
		}
	}
	total := others + value
	if total > 100+Epsilon {
		return d, &GuardError{Material: material, Total: total, Err: ErrCompositionExceeded}
	}
	next := d.Clone()
	next[material] = value
	return next, nil
}
