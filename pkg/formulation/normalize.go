package formulation

import (
	"math"
	"strconv"
)

// Precision is the number of decimals every view and export uses.
const Precision = 4

// NoData is shown in place of an absent optional section.
const NoData = "no data"

// CostPlaceholder is shown when the service sent no per-material cost.
const CostPlaceholder = "-"

// Inclusion is a material with a strictly positive weight.
type Inclusion = Weight

// FormulaRow joins a material's weight with its individual cost, when known.
type FormulaRow struct {
	Material string   `json:"material"`
	Weight   float64  `json:"weight"`
	Cost     *float64 `json:"cost"`
}

// NutrientRow is one line of the nutrient conference table.
type NutrientRow struct {
	Nutrient string  `json:"nutrient"`
	Value    float64 `json:"value"`
}

// PieSlice is one wedge of the inclusion chart. Share is in [0,1].
type PieSlice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Share float64 `json:"share"`
}

// Report holds every derived view of a result. Exporters and on-screen
// views read from it instead of recomputing figures.
type Report struct {
	Status             string        `json:"status"`
	TotalCost          float64       `json:"total_cost"`
	WeightTotal        float64       `json:"weight_total"`
	Inclusions         []Inclusion   `json:"inclusions"`
	Rows               []FormulaRow  `json:"rows"`
	Nutrients          []NutrientRow `json:"nutrients"`
	NutrientsAvailable bool          `json:"nutrients_available"`
	Pie                []PieSlice    `json:"pie"`
}

// Normalize derives the report views of an optimization result.
func Normalize(res Result) Report {
	rep := Report{
		Status:    res.Status,
		TotalCost: res.TotalCost,
	}
	rep.setInclusions(res.Inclusions)

	rep.Rows = make([]FormulaRow, 0, len(rep.Inclusions))
	for _, inc := range rep.Inclusions {
		row := FormulaRow{Material: inc.Material, Weight: inc.Percent}
		if res.HasCosts {
			if c, ok := res.Costs[inc.Material]; ok {
				row.Cost = Float(c)
			}
		}
		rep.Rows = append(rep.Rows, row)
	}

	rep.setNutrients(res.Conference, res.HasConference)
	return rep
}

// NormalizeConsultation builds the same views for a consultation: the
// inclusions come from the submitted draft, the figures from the service.
func NormalizeConsultation(c Consultation, d Draft) Report {
	rep := Report{TotalCost: c.TotalCost}
	weights := make([]Weight, 0, len(d))
	for _, m := range d.Materials() {
		weights = append(weights, Weight{Material: m, Percent: d[m]})
	}
	rep.setInclusions(weights)
	rep.Rows = make([]FormulaRow, 0, len(rep.Inclusions))
	for _, inc := range rep.Inclusions {
		rep.Rows = append(rep.Rows, FormulaRow{Material: inc.Material, Weight: inc.Percent})
	}
	rep.setNutrients(c.Nutrients, c.HasNutrients)
	return rep
}

func (r *Report) setInclusions(weights []Weight) {
	r.Inclusions = make([]Inclusion, 0, len(weights))
	for _, w := range weights {
		if w.Percent > 0 {
			r.Inclusions = append(r.Inclusions, w)
			r.WeightTotal += w.Percent
		}
	}
	r.Pie = make([]PieSlice, 0, len(r.Inclusions))
	for _, inc := range r.Inclusions {
		r.Pie = append(r.Pie, PieSlice{
			Label: inc.Material,
			Value: inc.Percent,
			Share: inc.Percent / r.WeightTotal,
		})
	}
}

func (r *Report) setNutrients(values []NutrientValue, ok bool) {
	r.Nutrients = make([]NutrientRow, 0, len(values))
	if !ok {
		return
	}
	for _, v := range values {
		r.Nutrients = append(r.Nutrients, NutrientRow{Nutrient: v.Nutrient, Value: v.Value})
	}
	r.NutrientsAvailable = len(r.Nutrients) > 0
}

// FormatWeight renders a percentage with the shared precision.
func FormatWeight(v float64) string { return FormatValue(v) }

// FormatCost renders an optional cost, falling back to CostPlaceholder.
func FormatCost(c *float64) string {
	if c == nil {
		return CostPlaceholder
	}
	return FormatValue(*c)
}

// FormatValue renders any figure with the shared precision.
func FormatValue(v float64) string {
	return strconv.FormatFloat(Round(v), 'f', Precision, 64)
}

// Round rounds v to Precision decimals.
func Round(v float64) float64 {
	p := math.Pow10(Precision)
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}
