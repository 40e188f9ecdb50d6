// Package aggregate computes team-level aggregates from stored evaluations.
// Everything here is a pure function of its inputs; nothing is cached.
package aggregate

import (
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/internal/domain/rubric"
)

// Composite recomputes the composite of a single evaluation.
func Composite(e model.Evaluation, r *rubric.Rubric) float64 {
	return r.Composite(e.Scores)
}

// TeamAverage is the unweighted mean of evaluation composites: each evaluator
// contributes equally. Returns 0 when evals is empty.
func TeamAverage(evals []model.Evaluation, r *rubric.Rubric) float64 {
	if len(evals) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range evals {
		sum += Composite(e, r)
	}
	return sum / float64(len(evals))
}

// CriterionAverages averages each criterion's raw value across evals.
func CriterionAverages(evals []model.Evaluation, r *rubric.Rubric) map[string]float64 {
	criteria := r.Criteria()
	out := make(map[string]float64, len(criteria))
	if len(evals) == 0 {
		return out
	}
	for _, c := range criteria {
		sum := 0.0
		for _, e := range evals {
			sum += e.Scores[c.Name]
		}
		out[c.Name] = sum / float64(len(evals))
	}
	return out
}

// TeamResult assembles the on-demand result for a team. evals must be the
// same set tc was computed over.
func TeamResult(tc model.TeamCompletion, evals []model.Evaluation, r *rubric.Rubric) model.TeamResult {
	return model.TeamResult{
		TeamID:            tc.TeamID,
		CompositeAverage:  TeamAverage(evals, r),
		EvaluationCount:   tc.Received,
		Expected:          tc.Expected,
		IsComplete:        tc.IsComplete,
		CriterionAverages: CriterionAverages(evals, r),
	}
}
