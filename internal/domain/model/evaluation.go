// Package model contains domain models passed between layers.
package model

import "time"

// EvaluatorKind tags the variant of an evaluator.
type EvaluatorKind string

const (
	EvaluatorInternal EvaluatorKind = "internal"
	EvaluatorExternal EvaluatorKind = "external"
)

// Valid reports whether k is a known evaluator kind.
func (k EvaluatorKind) Valid() bool {
	return k == EvaluatorInternal || k == EvaluatorExternal
}

// Team is a competing team as published by the directory.
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Evaluator is a person scoring teams.
type Evaluator struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Kind EvaluatorKind `json:"kind"`
}

// AssignmentStatus is the lifecycle of an assignment. Only "assigned" exists.
type AssignmentStatus string

const AssignmentAssigned AssignmentStatus = "assigned"

// Assignment states that EvaluatorID owes TeamID a score.
type Assignment struct {
	EvaluatorID string           `json:"evaluator_id"`
	TeamID      string           `json:"team_id"`
	Status      AssignmentStatus `json:"status"`
}

// PairKey identifies an (evaluator, team) pair.
type PairKey struct {
	EvaluatorID string
	TeamID      string
}

// Evaluation is one evaluator's scored submission for one team.
type Evaluation struct {
	ID             string             `json:"id"`
	EvaluatorID    string             `json:"evaluator_id"`
	TeamID         string             `json:"team_id"`
	Scores         map[string]float64 `json:"scores"`
	Comments       string             `json:"comments,omitempty"`
	CompositeScore float64            `json:"composite_score"`
	SubmittedAt    time.Time          `json:"submitted_at"`
	CreatedAt      time.Time          `json:"created_at"`
	// Revision counts submissions for the pair, starting at 1.
	Revision int `json:"revision"`
}

// Key returns the pair this evaluation belongs to.
func (e Evaluation) Key() PairKey {
	return PairKey{EvaluatorID: e.EvaluatorID, TeamID: e.TeamID}
}

// Clone returns a deep copy so callers cannot mutate stored score maps.
func (e Evaluation) Clone() Evaluation {
	c := e
	if e.Scores != nil {
		c.Scores = make(map[string]float64, len(e.Scores))
		for k, v := range e.Scores {
			c.Scores[k] = v
		}
	}
	return c
}

// Role is the caller role carried by identity claims.
type Role string

const (
	RoleEvaluator Role = "evaluator"
	RoleAdmin     Role = "admin"
)

// Caller is the resolved identity attached to every request.
type Caller struct {
	ID   string
	Role Role
}
