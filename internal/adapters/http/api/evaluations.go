package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/verdict/internal/domain/model"
)

type submitRequest struct {
	Scores   map[string]float64 `json:"scores"`
	Comments string             `json:"comments"`
}

type submittedAnnouncement struct {
	EvaluatorID string `json:"evaluator_id"`
	TeamID      string `json:"team_id"`
	Revision    int    `json:"revision"`
}

type evaluationsResponse struct {
	Evaluations []model.Evaluation `json:"evaluations"`
}

// handleSubmitEvaluation handles PUT /v1/teams/{teamID}/evaluations/{evaluatorID}.
func (s *Server) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFault(w, r, err)
		return
	}
	teamID := chi.URLParam(r, "teamID")
	evaluatorID := chi.URLParam(r, "evaluatorID")

	e, err := s.svc.SubmitEvaluation(r.Context(), callerOf(r), evaluatorID, teamID, req.Scores, req.Comments)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.announce(r.Context(), AnnounceEvaluationSubmitted, submittedAnnouncement{
		EvaluatorID: e.EvaluatorID,
		TeamID:      e.TeamID,
		Revision:    e.Revision,
	})
	status := http.StatusOK
	if e.Revision == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, e)
}

// handleGetEvaluation handles GET /v1/teams/{teamID}/evaluations/{evaluatorID}.
func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.GetEvaluation(r.Context(), callerOf(r), chi.URLParam(r, "evaluatorID"), chi.URLParam(r, "teamID"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleListTeamEvaluations handles GET /v1/teams/{teamID}/evaluations.
func (s *Server) handleListTeamEvaluations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListTeamEvaluations(r.Context(), callerOf(r), chi.URLParam(r, "teamID"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	if list == nil {
		list = []model.Evaluation{}
	}
	writeJSON(w, http.StatusOK, evaluationsResponse{Evaluations: list})
}
