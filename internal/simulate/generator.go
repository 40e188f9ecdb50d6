package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/pkg/logger"
)

const randomFloatDivisor = 1000000

// Performance tiers as fractions of a criterion's maximum.
var tiers = []struct {
	min, span float64
}{
	{0.30, 0.40}, // average, most common
	{0.30, 0.40},
	{0.70, 0.20}, // high
	{0.01, 0.29}, // low
	{0.90, 0.10}, // elite
	{0.60, 0.20}, // mid-high
	{0.20, 0.20}, // mid-low
	{0.00, 1.00}, // anywhere
}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateSubmissions scores every assignment. Each team draws a tier so
// teams separate; each evaluator scatters around it.
func generateSubmissions(ctx context.Context, dir directory.Directory, criteria []Criterion, stats *Stats) ([]Submission, error) {
	teams, err := dir.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	var out []Submission
	for _, t := range teams {
		assignments, err := dir.ListByTeam(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("list assignments for %s: %w", t.ID, err)
		}
		tier := tiers[randomIndex(len(tiers))]
		for _, a := range assignments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, Submission{
				EvaluatorID: a.EvaluatorID,
				TeamID:      a.TeamID,
				Scores:      drawScores(criteria, tier.min, tier.span),
			})
		}
	}
	stats.Generated = len(out)
	logger.Get().Info(ctx, "generated submissions", logger.Int("count", len(out)), logger.Int("teams", len(teams)))
	return out, nil
}

// drawScores picks a value per criterion, rounded to quarter points and
// clamped to the criterion's range.
func drawScores(criteria []Criterion, lo, span float64) map[string]float64 {
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		v := (lo + getRandomFloat()*span) * c.MaxScore
		v = math.Round(v*4) / 4
		scores[c.Name] = math.Max(0, math.Min(c.MaxScore, v))
	}
	return scores
}
