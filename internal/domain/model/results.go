package model

import "time"

// TeamCompletion is derived on read from stored evaluations and assignments.
type TeamCompletion struct {
	TeamID     string `json:"team_id"`
	Received   int    `json:"received"`
	Expected   int    `json:"expected"`
	IsComplete bool   `json:"is_complete"`
}

// NewTeamCompletion applies the completeness rule: every expected evaluation
// received, and at least one expected.
func NewTeamCompletion(teamID string, received, expected int) TeamCompletion {
	return TeamCompletion{
		TeamID:     teamID,
		Received:   received,
		Expected:   expected,
		IsComplete: expected > 0 && received == expected,
	}
}

// EvaluatorProgress summarises one evaluator's obligations.
type EvaluatorProgress struct {
	EvaluatorID string `json:"evaluator_id"`
	Assigned    int    `json:"assigned"`
	Completed   int    `json:"completed"`
	Remaining   int    `json:"remaining"`
}

// TeamResult is the on-demand aggregate for one team.
type TeamResult struct {
	TeamID            string             `json:"team_id"`
	CompositeAverage  float64            `json:"composite_average"`
	EvaluationCount   int                `json:"evaluation_count"`
	Expected          int                `json:"expected"`
	IsComplete        bool               `json:"is_complete"`
	CriterionAverages map[string]float64 `json:"criterion_averages"`
}

// RankingEntry is one row of a ranking.
type RankingEntry struct {
	Rank           int     `json:"rank"`
	TeamID         string  `json:"team_id"`
	TeamName       string  `json:"team_name,omitempty"`
	CompositeScore float64 `json:"composite_score"`
}

// ReleaseStatus is the results lifecycle. The only transition is
// NotReleased -> Released.
type ReleaseStatus string

const (
	NotReleased ReleaseStatus = "not_released"
	Released    ReleaseStatus = "released"
)

// ReleaseState is the process-wide results state. Once Status is Released the
// ranking is frozen.
type ReleaseState struct {
	Status     ReleaseStatus  `json:"status"`
	ReleasedAt time.Time      `json:"released_at,omitzero"`
	ReleasedBy string         `json:"released_by,omitempty"`
	Ranking    []RankingEntry `json:"ranking,omitempty"`
}

// IsReleased reports whether results were published.
func (s ReleaseState) IsReleased() bool { return s.Status == Released }
