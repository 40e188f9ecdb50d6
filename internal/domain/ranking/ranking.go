// Package ranking orders teams by aggregate score and assigns competition ranks.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/okian/verdict/internal/domain/model"
)

// Epsilon is the tolerance under which two scores count as tied.
const Epsilon = 1e-9

// Candidate is a team entering the ranking.
type Candidate struct {
	TeamID       string
	TeamName     string
	Score        float64
	RegisteredAt time.Time
}

// tied reports whether a and b are equal within Epsilon.
func tied(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// byScore orders by exact score descending with team id as the total-order
// guard. Grouping within Epsilon happens afterwards, since "within Epsilon"
// is not transitive and cannot drive a sort comparator.
func byScore(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.TeamID < b.TeamID
}

// inGroup orders members of one tie group: earlier registration, then team id.
func inGroup(a, b Candidate) bool {
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.TeamID < b.TeamID
}

// groups sorts cs by exact score and splits it into tie groups. A group
// holds every candidate within Epsilon of the group's leading (highest)
// score. Each group is then reordered by the registration tie-break.
func groups(cs []Candidate) [][]Candidate {
	sort.Slice(cs, func(i, j int) bool { return byScore(cs[i], cs[j]) })
	var out [][]Candidate
	for start := 0; start < len(cs); {
		end := start + 1
		for end < len(cs) && tied(cs[end].Score, cs[start].Score) {
			end++
		}
		g := cs[start:end]
		sort.Slice(g, func(i, j int) bool { return inGroup(g[i], g[j]) })
		out = append(out, g)
		start = end
	}
	return out
}

// Build sorts candidates and assigns competition ranks (1,1,3,...): every team
// in a tie group shares the group's rank, and the next group takes its
// 1-based position. The input slice is not modified.
func Build(cs []Candidate) []model.RankingEntry {
	sorted := make([]Candidate, len(cs))
	copy(sorted, cs)

	out := make([]model.RankingEntry, 0, len(sorted))
	for _, g := range groups(sorted) {
		rank := len(out) + 1
		for _, c := range g {
			out = append(out, model.RankingEntry{
				Rank:           rank,
				TeamID:         c.TeamID,
				TeamName:       c.TeamName,
				CompositeScore: c.Score,
			})
		}
	}
	return out
}
