package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/verdict/internal/domain/model"
)

// Accepted layouts for registered_at. YAML timestamps may arrive already
// parsed, in which case koanf renders them with Go's default time format.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadFile reads a YAML directory export:
//
//	teams:
//	  - {id: A, name: Alpha, registered_at: "2026-03-01T09:00:00Z"}
//	evaluators:
//	  - {id: e1, name: Ada, kind: internal}
//	assignments:
//	  - {evaluator_id: e1, team_id: A}
func LoadFile(_ context.Context, path string) (*Static, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	var (
		teams       []model.Team
		evaluators  []model.Evaluator
		assignments []model.Assignment
	)
	for i, t := range k.Slices("teams") {
		registered, err := parseTime(t.String("registered_at"))
		if err != nil {
			return nil, fmt.Errorf("%w: teams[%d].registered_at: %w", ErrLoad, i, err)
		}
		teams = append(teams, model.Team{
			ID:           t.String("id"),
			Name:         t.String("name"),
			RegisteredAt: registered,
		})
	}
	for _, e := range k.Slices("evaluators") {
		evaluators = append(evaluators, model.Evaluator{
			ID:   e.String("id"),
			Name: e.String("name"),
			Kind: model.EvaluatorKind(strings.ToLower(e.String("kind"))),
		})
	}
	for _, a := range k.Slices("assignments") {
		assignments = append(assignments, model.Assignment{
			EvaluatorID: a.String("evaluator_id"),
			TeamID:      a.String("team_id"),
		})
	}
	return NewStatic(teams, evaluators, assignments)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
