// Package rubric defines the weighted scoring criteria of an event and the
// composite-score computation over them.
package rubric

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/verdict/internal/domain/fault"
)

// NativeScale reports composites on the criteria's own scale.
const NativeScale = 0

// Criterion is one scored dimension of the rubric.
type Criterion struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	MaxScore float64 `json:"max_score"`
}

// Option applies a configuration option to a Rubric under construction.
type Option func(*Rubric)

// WithScale fixes the reporting scale of composites. Zero keeps the native
// scale; a positive value normalises each criterion to 0..1 before weighting
// and multiplies the weighted mean by scale.
func WithScale(scale float64) Option {
	return func(r *Rubric) {
		r.scale = scale
	}
}

// Rubric is an immutable, ordered set of criteria with a fixed scale.
type Rubric struct {
	criteria    []Criterion
	index       map[string]int
	totalWeight float64
	maxScore    float64
	scale       float64
}

// New validates criteria and builds a Rubric.
func New(criteria []Criterion, opts ...Option) (*Rubric, error) {
	const op = "rubric.new"
	if len(criteria) == 0 {
		return nil, fault.New(op, fault.ErrValidation, "rubric needs at least one criterion")
	}
	r := &Rubric{
		criteria: make([]Criterion, 0, len(criteria)),
		index:    make(map[string]int, len(criteria)),
	}
	for _, c := range criteria {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			return nil, fault.New(op, fault.ErrValidation, "criterion name must not be empty")
		case !(c.Weight > 0) || math.IsInf(c.Weight, 0):
			return nil, fault.New(op, fault.ErrValidation, "weight must be positive", name)
		case !(c.MaxScore > 0) || math.IsInf(c.MaxScore, 0):
			return nil, fault.New(op, fault.ErrValidation, "max score must be positive", name)
		}
		if _, dup := r.index[name]; dup {
			return nil, fault.New(op, fault.ErrValidation, "duplicate criterion", name)
		}
		r.index[name] = len(r.criteria)
		r.criteria = append(r.criteria, Criterion{Name: name, Weight: c.Weight, MaxScore: c.MaxScore})
		r.totalWeight += c.Weight
		r.maxScore = math.Max(r.maxScore, c.MaxScore)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scale < 0 || math.IsNaN(r.scale) || math.IsInf(r.scale, 0) {
		return nil, fault.New(op, fault.ErrValidation, fmt.Sprintf("invalid scale %v", r.scale))
	}
	return r, nil
}

// Criteria returns a copy of the criteria in declaration order.
func (r *Rubric) Criteria() []Criterion {
	out := make([]Criterion, len(r.criteria))
	copy(out, r.criteria)
	return out
}

// Scale returns the configured reporting scale (NativeScale when unset).
func (r *Rubric) Scale() float64 { return r.scale }

// Ceiling is the largest composite the rubric can produce.
func (r *Rubric) Ceiling() float64 {
	if r.scale > 0 {
		return r.scale
	}
	return r.maxScore
}

// Rescaled returns a copy of r with a different reporting scale. Whether a
// rescale is allowed at this point in the event is the caller's decision.
func (r *Rubric) Rescaled(scale float64) (*Rubric, error) {
	return New(r.criteria, WithScale(scale))
}

// Validate checks that scores cover every criterion exactly, with each value
// within [0, MaxScore]. Every offending criterion is listed in the error's
// subjects; the message names the first one.
func (r *Rubric) Validate(scores map[string]float64) error {
	const op = "rubric.validate"
	var (
		bad   []string
		first string
	)
	note := func(name, reason string) {
		if first == "" {
			first = fmt.Sprintf("criterion %q %s", name, reason)
		}
		bad = append(bad, name)
	}

	for _, c := range r.criteria {
		v, ok := scores[c.Name]
		switch {
		case !ok:
			note(c.Name, "is missing")
		case math.IsNaN(v) || math.IsInf(v, 0):
			note(c.Name, "is not a finite number")
		case v < 0 || v > c.MaxScore:
			note(c.Name, fmt.Sprintf("must be within [0, %g], got %g", c.MaxScore, v))
		}
	}

	var unknown []string
	for name := range scores {
		if _, ok := r.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		note(name, "is not part of the rubric")
	}

	if len(bad) > 0 {
		return fault.New(op, fault.ErrValidation, first, bad...)
	}
	return nil
}

// Composite computes the weighted mean of scores on the rubric's scale.
// Scores are assumed valid; missing criteria count as zero.
func (r *Rubric) Composite(scores map[string]float64) float64 {
	if r.totalWeight == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range r.criteria {
		v := scores[c.Name]
		if r.scale > 0 {
			sum += c.Weight * (v / c.MaxScore)
		} else {
			sum += c.Weight * v
		}
	}
	mean := sum / r.totalWeight
	if r.scale > 0 {
		return mean * r.scale
	}
	return mean
}
