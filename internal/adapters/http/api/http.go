// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	service "github.com/okian/verdict/internal/app"
	"github.com/okian/verdict/internal/auth"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/internal/domain/rubric"
	"github.com/okian/verdict/pkg/logger"
)

// Service is the engine surface the handlers call.
type Service interface {
	SubmitEvaluation(ctx context.Context, caller model.Caller, evaluatorID, teamID string, scores map[string]float64, comments string) (model.Evaluation, error)
	GetEvaluation(ctx context.Context, caller model.Caller, evaluatorID, teamID string) (model.Evaluation, error)
	ListTeamEvaluations(ctx context.Context, caller model.Caller, teamID string) ([]model.Evaluation, error)
	GetTeamResult(ctx context.Context, caller model.Caller, teamID string) (model.TeamResult, error)
	CompletionOverview(ctx context.Context, caller model.Caller) (service.Overview, error)
	GetEvaluatorProgress(ctx context.Context, caller model.Caller, evaluatorID string) (model.EvaluatorProgress, error)
	ReleaseResults(ctx context.Context, caller model.Caller) ([]model.RankingEntry, error)
	GetPublishedRanking(ctx context.Context) ([]model.RankingEntry, error)
	Status(ctx context.Context) (service.Status, error)
	ChangeScale(ctx context.Context, caller model.Caller, scale float64) (float64, error)
	Rubric() *rubric.Rubric
	GetStats(ctx context.Context) map[string]any
}

// Publisher receives announcements after successful writes.
type Publisher interface {
	Publish(typ string, data any) error
}

// Announcement types handed to the Publisher.
const (
	AnnounceEvaluationSubmitted = "evaluation.submitted"
	AnnounceResultsReleased     = "results.released"
)

// Server wires HTTP routes for the engine API.
type Server struct {
	svc         Service
	verifier    *auth.Verifier
	publisher   Publisher
	feed        http.Handler
	limiter     RateLimiter
	submitLimit int
	window      time.Duration
	origins     []string
	timeout     time.Duration
	log         logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPublisher sets the announcement sink.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithFeed mounts h at /v1/feed.
func WithFeed(h http.Handler) Option {
	return func(s *Server) { s.feed = h }
}

// WithRateLimiter limits submissions per caller to limit per window.
func WithRateLimiter(l RateLimiter, limit int, window time.Duration) Option {
	return func(s *Server) {
		s.limiter = l
		s.submitLimit = limit
		s.window = window
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRequestTimeout bounds handler execution.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(svc Service, verifier *auth.Verifier, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		verifier: verifier,
		origins:  []string{"*"},
		timeout:  30 * time.Second,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with every route registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HandleHealth)
	r.Get("/stats", NewStatsHandler(s.svc).HandleStats)
	if s.feed != nil {
		r.Handle("/v1/feed", s.feed)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		if s.verifier != nil {
			r.Use(s.verifier.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, err, nil)
			}))
		}

		r.Get("/v1/rubric", s.handleGetRubric)
		r.Get("/v1/ranking", s.handleGetRanking)
		r.Get("/v1/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Route("/v1/teams/{teamID}", func(r chi.Router) {
				r.Get("/evaluations", s.handleListTeamEvaluations)
				r.With(s.rateLimit).Put("/evaluations/{evaluatorID}", s.handleSubmitEvaluation)
				r.Get("/evaluations/{evaluatorID}", s.handleGetEvaluation)
				r.Get("/result", s.handleTeamResult)
			})
			r.Get("/v1/evaluators/{evaluatorID}/progress", s.handleEvaluatorProgress)
			r.Get("/v1/completion", s.handleCompletion)
			r.Put("/v1/rubric/scale", s.handleChangeScale)
			r.Post("/v1/release", s.handleRelease)
		})
	})
	return r
}

// announce hands a message to the publisher. Failures are logged only; the
// write already succeeded.
func (s *Server) announce(ctx context.Context, typ string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(typ, data); err != nil {
		s.log.Warn(ctx, "announcement failed", logger.String("type", typ), logger.Error(err))
	}
}

// requireCaller rejects anonymous requests.
func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.CallerFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, auth.ErrMissingToken, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerOf(r *http.Request) model.Caller {
	c, _ := auth.CallerFrom(r.Context())
	return c
}

const (
	codeBadRequest      = "validation_error"
	codeUnauthenticated = "unauthenticated"
	codeRateLimited     = "rate_limited"
)

type errorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Subjects []string `json:"subjects,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error, subjects []string) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Subjects: subjects})
}

// writeFault maps an engine error onto its HTTP status.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, fault.Label(err), err, fault.SubjectsOf(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, fault.ErrState):
		return http.StatusPreconditionFailed
	case errors.Is(err, fault.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, fault.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.WrapKind("api.decode", fault.ErrValidation, err)
	}
	return nil
}

const maxBodyBytes = 1 << 20
