package formulation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Weight is a material's share of the formulation, in percent.
type Weight struct {
	Material string  `json:"material"`
	Percent  float64 `json:"percent"`
}

// NutrientValue is the level of a nutrient achieved by a formulation.
type NutrientValue struct {
	Nutrient string  `json:"nutrient"`
	Value    float64 `json:"value"`
}

// Result is the optimization service's answer. Inclusions and Conference
// keep the order in which the service listed them.
type Result struct {
	Status        string
	TotalCost     float64
	Inclusions    []Weight
	Costs         map[string]float64
	HasCosts      bool
	Conference    []NutrientValue
	HasConference bool
}

// Consultation is the service's evaluation of a manually specified draft.
type Consultation struct {
	TotalCost    float64
	Nutrients    []NutrientValue
	HasNutrients bool
}

var errNotObject = errors.New("response is not a JSON object")

// Field spellings seen across service deployments, current one first.
var (
	statusKeys     = []string{"status"}
	totalCostKeys  = []string{"custo_total", "totalCost", "total_cost"}
	inclusionKeys  = []string{"inclusoes", "inclusions", "formula"}
	costKeys       = []string{"custos_individuais", "perMaterialCost", "per_material_cost"}
	conferenceKeys = []string{"conferencia_nutricional", "nutrientConference", "nutrient_conference"}
	nutrientKeys   = []string{"nutrientes", "nutrients"}

	rowNameKeys  = []string{"Nutriente", "nutriente", "nutrient", "name"}
	rowValueKeys = []string{"Valor Obtido", "valor_obtido", "achievedValue", "value"}
)

// ParseResult decodes an optimization response. Only malformed JSON or a
// body in which the service reports an error fail; absent optional fields
// leave HasCosts or HasConference unset.
func ParseResult(raw []byte) (Result, error) {
	root, err := parseObject(raw)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Status = lookup(root, statusKeys...).String()
	res.TotalCost = number(lookup(root, totalCostKeys...))

	if inc := lookup(root, inclusionKeys...); inc.IsObject() {
		inc.ForEach(func(k, v gjson.Result) bool {
			res.Inclusions = append(res.Inclusions, Weight{Material: k.String(), Percent: number(v)})
			return true
		})
	}

	if costs := lookup(root, costKeys...); costs.IsObject() {
		res.HasCosts = true
		res.Costs = make(map[string]float64)
		costs.ForEach(func(k, v gjson.Result) bool {
			if v.Type != gjson.Null {
				res.Costs[k.String()] = number(v)
			}
			return true
		})
	}

	if conf := lookup(root, conferenceKeys...); conf.Exists() {
		res.Conference, res.HasConference = nutrientValues(conf)
	}
	return res, nil
}

// ParseConsultation decodes the response of a consultation. The nutrient
// list is accepted both as an array of rows and as a name to value map.
func ParseConsultation(raw []byte) (Consultation, error) {
	root, err := parseObject(raw)
	if err != nil {
		return Consultation{}, err
	}
	var c Consultation
	c.TotalCost = number(lookup(root, totalCostKeys...))
	if n := lookup(root, append(nutrientKeys, conferenceKeys...)...); n.Exists() {
		c.Nutrients, c.HasNutrients = nutrientValues(n)
	}
	return c, nil
}

func parseObject(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("parse response: invalid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("parse response: %w", errNotObject)
	}
	if e := root.Get("erro"); e.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrServiceFailure, e.String())
	}
	return root, nil
}

// nutrientValues reads either the map shape or the legacy array of rows.
func nutrientValues(v gjson.Result) ([]NutrientValue, bool) {
	var out []NutrientValue
	switch {
	case v.IsObject():
		v.ForEach(func(k, val gjson.Result) bool {
			out = append(out, NutrientValue{Nutrient: k.String(), Value: number(val)})
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, row gjson.Result) bool {
			name := lookup(row, rowNameKeys...)
			if !name.Exists() {
				return true
			}
			out = append(out, NutrientValue{Nutrient: name.String(), Value: number(lookup(row, rowValueKeys...))})
			return true
		})
	default:
		return nil, false
	}
	return out, len(out) > 0
}

func lookup(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// number treats null and non-numeric values as 0.
func number(v gjson.Result) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		f = v.Float()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// MarshalJSON writes the current service shape, keeping list order, so that
// a stored result parses back to the same value.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "status", r.Status)
	buf.WriteByte(',')
	writeField(&buf, "custo_total", r.TotalCost)
	buf.WriteString(`,"inclusoes":{`)
	for i, w := range r.Inclusions {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeField(&buf, w.Material, w.Percent)
	}
	buf.WriteByte('}')
	if r.HasCosts {
		costs := r.Costs
		if costs == nil {
			costs = map[string]float64{}
		}
		buf.WriteByte(',')
		writeField(&buf, "custos_individuais", costs)
	}
	if r.HasConference {
		buf.WriteString(`,"conferencia_nutricional":{`)
		for i, n := range r.Conference {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeField(&buf, n.Nutrient, n.Value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v any) {
	k, _ := json.Marshal(key)
	val, err := json.Marshal(v)
	if err != nil {
		val = []byte("null")
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
}
