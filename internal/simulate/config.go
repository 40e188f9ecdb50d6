// Package simulate drives a running engine end to end: it scores every
// assignment in a directory, releases, and checks the published ranking
// against a local recomputation.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	DirectoryFile string        // Directory YAML shared with the server
	Secret        string        // HS256 secret used to mint caller tokens
	Issuer        string        // Token issuer, empty to omit
	AdminID       string        // Caller ID used for admin operations
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Resubmit      float64       // Fraction of pairs resubmitted with new scores
	SkipRelease   bool          // Stop after submissions
	OutputFile    string        // Output file for generated submissions
	Verbose       bool          // Enable verbose logging
}

// Submission is one generated evaluation.
type Submission struct {
	EvaluatorID string             `json:"evaluator_id"`
	TeamID      string             `json:"team_id"`
	Scores      map[string]float64 `json:"scores"`
	Comments    string             `json:"comments,omitempty"`
}

// Criterion mirrors the rubric document served by the engine.
type Criterion struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	MaxScore float64 `json:"max_score"`
}

// RubricDoc is the body of GET /v1/rubric.
type RubricDoc struct {
	Criteria []Criterion `json:"criteria"`
	Scale    float64     `json:"scale"`
	Ceiling  float64     `json:"ceiling"`
}

// Entry is one published ranking row.
type Entry struct {
	Rank           int     `json:"rank"`
	TeamID         string  `json:"team_id"`
	TeamName       string  `json:"team_name"`
	CompositeScore float64 `json:"composite_score"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Submitted   int
	Created     int
	Replaced    int
	Failed      int
	Resubmitted int
	Released    bool
	Ranked      int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
