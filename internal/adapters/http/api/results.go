package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/verdict/internal/domain/model"
)

type rankingResponse struct {
	Ranking []model.RankingEntry `json:"ranking"`
}

type releasedAnnouncement struct {
	Teams int `json:"teams"`
}

// handleTeamResult handles GET /v1/teams/{teamID}/result.
func (s *Server) handleTeamResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.GetTeamResult(r.Context(), callerOf(r), chi.URLParam(r, "teamID"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCompletion handles GET /v1/completion.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.CompletionOverview(r.Context(), callerOf(r))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// handleEvaluatorProgress handles GET /v1/evaluators/{evaluatorID}/progress.
func (s *Server) handleEvaluatorProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetEvaluatorProgress(r.Context(), callerOf(r), chi.URLParam(r, "evaluatorID"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRelease handles POST /v1/release.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ReleaseResults(r.Context(), callerOf(r))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.announce(r.Context(), AnnounceResultsReleased, releasedAnnouncement{Teams: len(entries)})
	writeJSON(w, http.StatusOK, rankingResponse{Ranking: entries})
}

// handleGetRanking handles GET /v1/ranking.
func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.GetPublishedRanking(r.Context())
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingResponse{Ranking: entries})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
