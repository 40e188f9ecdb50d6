package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/internal/auth"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	tokenTTL            = time.Hour
)

type statusDoc struct {
	Released       bool `json:"released"`
	GlobalComplete bool `json:"global_complete"`
	TeamsAssigned  int  `json:"teams_assigned"`
	TeamsComplete  int  `json:"teams_complete"`
}

type rankingDoc struct {
	Ranking []Entry `json:"ranking"`
}

// Run executes the complete simulation.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get()
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("directory", cfg.DirectoryFile),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("skipRelease", cfg.SkipRelease))

	dir, err := directory.LoadFile(ctx, cfg.DirectoryFile)
	if err != nil {
		return nil, err
	}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, err
	}

	var status statusDoc
	if _, err := client.do(ctx, http.MethodGet, "/v1/status", "", nil, &status); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if status.Released {
		return nil, ErrAlreadyReleased
	}

	var doc RubricDoc
	if _, err := client.do(ctx, http.MethodGet, "/v1/rubric", "", nil, &doc); err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}

	subs, err := generateSubmissions(ctx, dir, doc.Criteria, stats)
	if err != nil {
		return nil, fmt.Errorf("generate submissions: %w", err)
	}
	tokens, err := mintTokens(cfg, subs)
	if err != nil {
		return nil, err
	}

	counters := submitAll(ctx, cfg, client, subs, tokens)

	// A second pass overwrites a share of pairs; the verifier must see only
	// the latest scores.
	if n := resubmitCount(cfg.Resubmit, len(subs)); n > 0 {
		again := make([]Submission, 0, n)
		for _, s := range subs[:n] {
			again = append(again, Submission{
				EvaluatorID: s.EvaluatorID,
				TeamID:      s.TeamID,
				Scores:      drawScores(doc.Criteria, 0, 1),
				Comments:    "revised",
			})
		}
		second := submitAll(ctx, cfg, client, again, tokens)
		subs = append(subs, again...)
		stats.Resubmitted = n
		stats.add(second)
	}
	stats.add(counters)

	if err := saveSubmissions(ctx, cfg.OutputFile, subs); err != nil {
		log.Warn(ctx, "failed to save submissions", logger.Error(err))
	}

	if cfg.SkipRelease {
		return finish(ctx, stats), nil
	}

	admin, err := auth.Issue(cfg.Secret, cfg.Issuer, model.Caller{ID: cfg.AdminID, Role: model.RoleAdmin}, tokenTTL)
	if err != nil {
		return nil, err
	}
	if _, err := client.do(ctx, http.MethodGet, "/v1/status", "", nil, &status); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if !status.GlobalComplete {
		return nil, fmt.Errorf("%w: %d of %d teams complete", ErrIncomplete, status.TeamsComplete, status.TeamsAssigned)
	}

	var released rankingDoc
	if _, err := client.do(ctx, http.MethodPost, "/v1/release", admin, nil, &released); err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}
	stats.Released = true

	var published rankingDoc
	if _, err := client.do(ctx, http.MethodGet, "/v1/ranking", "", nil, &published); err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	stats.Ranked = len(published.Ranking)

	expected, err := expectedRanking(ctx, dir, doc, subs)
	if err != nil {
		return nil, err
	}
	if err := verifyRanking(ctx, expected, published.Ranking, cfg.Verbose); err != nil {
		return nil, err
	}
	return finish(ctx, stats), nil
}

func resubmitCount(fraction float64, n int) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return int(fraction * float64(n))
}

func mintTokens(cfg *Config, subs []Submission) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, s := range subs {
		if _, ok := tokens[s.EvaluatorID]; ok {
			continue
		}
		tok, err := auth.Issue(cfg.Secret, cfg.Issuer, model.Caller{ID: s.EvaluatorID, Role: model.RoleEvaluator}, tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("mint token for %s: %w", s.EvaluatorID, err)
		}
		tokens[s.EvaluatorID] = tok
	}
	return tokens, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, err := client.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveSubmissions writes the generated submissions as a JSON array. An empty
// filename skips saving.
func saveSubmissions(ctx context.Context, filename string, subs []Submission) error {
	if filename == "" {
		return nil
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write submissions: %w", err)
	}
	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

func finish(ctx context.Context, stats *Stats) *Stats {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("created", stats.Created),
		logger.Int("replaced", stats.Replaced),
		logger.Int("failed", stats.Failed),
		logger.Int("resubmitted", stats.Resubmitted),
		logger.Bool("released", stats.Released),
		logger.Int("ranked", stats.Ranked),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", perSecond))
	return stats
}
