package simulate

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/verdict/pkg/logger"
)

type submitCounters struct {
	submitted atomic.Int64
	created   atomic.Int64
	replaced  atomic.Int64
	failed    atomic.Int64
}

// submitAll sends submissions through a worker pool. tokens maps evaluator
// IDs to bearer tokens.
func submitAll(ctx context.Context, cfg *Config, client *HTTPClient, subs []Submission, tokens map[string]string) *submitCounters {
	log := logger.Get()
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(subs) && len(subs) > 0 {
		workers = len(subs)
	}
	log.Info(ctx, "submitting evaluations", logger.Int("count", len(subs)), logger.Int("workers", workers))

	counters := &submitCounters{}
	jobs := make(chan Submission, workers*2)
	var wg sync.WaitGroup

	var lastReport atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if ctx.Err() != nil {
					return
				}
				submitOne(ctx, client, sub, tokens[sub.EvaluatorID], counters, cfg.Verbose)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= time.Second && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "submission progress",
						logger.Int64("submitted", counters.submitted.Load()),
						logger.Int("total", len(subs)),
						logger.Int64("failed", counters.failed.Load()))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, s := range subs {
			select {
			case <-ctx.Done():
				return
			case jobs <- s:
			}
		}
	}()

	wg.Wait()
	return counters
}

func submitOne(ctx context.Context, client *HTTPClient, sub Submission, token string, c *submitCounters, verbose bool) {
	c.submitted.Add(1)
	path := "/v1/teams/" + url.PathEscape(sub.TeamID) + "/evaluations/" + url.PathEscape(sub.EvaluatorID)
	body := map[string]any{"scores": sub.Scores, "comments": sub.Comments}
	status, err := client.do(ctx, http.MethodPut, path, token, body, nil)
	switch {
	case err != nil:
		c.failed.Add(1)
		if verbose {
			logger.Get().Warn(ctx, "submission failed",
				logger.String("team", sub.TeamID),
				logger.String("evaluator", sub.EvaluatorID),
				logger.Error(err))
		}
	case status == http.StatusCreated:
		c.created.Add(1)
	default:
		c.replaced.Add(1)
	}
}

func (s *Stats) add(c *submitCounters) {
	s.Submitted += int(c.submitted.Load())
	s.Created += int(c.created.Load())
	s.Replaced += int(c.replaced.Load())
	s.Failed += int(c.failed.Load())
}
