package ranking

import (
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func ranksOf(t *testing.T, cs []Candidate) []int {
	t.Helper()
	entries := Build(cs)
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Rank
	}
	return out
}

func TestBuild_CompetitionRanking(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given scores 90, 90, 85, 70", t, func() {
		cs := []Candidate{
			{TeamID: "c", Score: 85, RegisteredAt: base},
			{TeamID: "a", Score: 90, RegisteredAt: base.Add(time.Minute)},
			{TeamID: "d", Score: 70, RegisteredAt: base},
			{TeamID: "b", Score: 90, RegisteredAt: base},
		}

		Convey("Then ranks are 1, 1, 3, 4", func() {
			So(ranksOf(t, cs), ShouldResemble, []int{1, 1, 3, 4})
		})

		Convey("Then tied teams are ordered by earlier registration", func() {
			entries := Build(cs)
			So(entries[0].TeamID, ShouldEqual, "b")
			So(entries[1].TeamID, ShouldEqual, "a")
		})

		Convey("Then the input slice is left untouched", func() {
			Build(cs)
			So(cs[0].TeamID, ShouldEqual, "c")
		})
	})

	Convey("Given scores that differ by less than epsilon", t, func() {
		cs := []Candidate{
			{TeamID: "a", Score: 8.0},
			{TeamID: "b", Score: 8.0 + Epsilon/10},
			{TeamID: "c", Score: 7.5},
		}

		Convey("Then they share a rank", func() {
			So(ranksOf(t, cs), ShouldResemble, []int{1, 1, 3})
		})

		Convey("Then identical registration falls back to team id", func() {
			entries := Build(cs)
			So(entries[0].TeamID, ShouldEqual, "a")
			So(entries[1].TeamID, ShouldEqual, "b")
		})
	})

	Convey("Given a three-way tie in the middle", t, func() {
		cs := []Candidate{
			{TeamID: "a", Score: 10},
			{TeamID: "b", Score: 5},
			{TeamID: "c", Score: 5},
			{TeamID: "d", Score: 5},
			{TeamID: "e", Score: 1},
		}

		Convey("Then the next rank skips past the tie", func() {
			So(ranksOf(t, cs), ShouldResemble, []int{1, 2, 2, 2, 5})
		})
	})

	Convey("Given no candidates", t, func() {
		Convey("Then the ranking is empty", func() {
			So(Build(nil), ShouldBeEmpty)
		})
	})
}

func TestBuild_Deterministic(t *testing.T) {
	Convey("Given the same candidates in any order", t, func() {
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		cs := make([]Candidate, 0, 50)
		for i := 0; i < 50; i++ {
			cs = append(cs, Candidate{
				TeamID:       string(rune('A'+i%26)) + string(rune('a'+i/26)),
				Score:        float64(i % 7),
				RegisteredAt: base.Add(time.Duration(i%3) * time.Hour),
			})
		}
		want := Build(cs)

		Convey("Then shuffled input yields the identical ranking", func() {
			rng := rand.New(rand.NewSource(7))
			for round := 0; round < 20; round++ {
				shuffled := make([]Candidate, len(cs))
				copy(shuffled, cs)
				rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
				So(Build(shuffled), ShouldResemble, want)
			}
		})
	})
}

func TestBuild_NearTieChain(t *testing.T) {
	Convey("Given a chain of scores each within epsilon of the next but not of both ends", t, func() {
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		c := Candidate{TeamID: "C", Score: 1.0, RegisteredAt: base}
		b := Candidate{TeamID: "B", Score: 1.0 + 0.8e-9, RegisteredAt: base.Add(time.Minute)}
		a := Candidate{TeamID: "A", Score: 1.0 + 1.6e-9, RegisteredAt: base.Add(2 * time.Minute)}

		forward := Build([]Candidate{c, b, a})
		reverse := Build([]Candidate{a, b, c})

		Convey("Then the top score leads its group and the low end starts a new rank", func() {
			So(forward, ShouldHaveLength, 3)
			So(forward[0].TeamID, ShouldEqual, "B")
			So(forward[0].Rank, ShouldEqual, 1)
			So(forward[1].TeamID, ShouldEqual, "A")
			So(forward[1].Rank, ShouldEqual, 1)
			So(forward[2].TeamID, ShouldEqual, "C")
			So(forward[2].Rank, ShouldEqual, 3)
		})

		Convey("Then input order does not change the ranking", func() {
			So(reverse, ShouldResemble, forward)
		})
	})

	Convey("Given a higher score registered later than a lower untied one", t, func() {
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		cs := []Candidate{
			{TeamID: "early", Score: 5.0, RegisteredAt: base},
			{TeamID: "late", Score: 5.0 + 3e-9, RegisteredAt: base.Add(time.Hour)},
		}

		Convey("Then the higher score still ranks first", func() {
			entries := Build(cs)
			So(entries[0].TeamID, ShouldEqual, "late")
			So(ranksOf(t, cs), ShouldResemble, []int{1, 2})
		})
	})
}
