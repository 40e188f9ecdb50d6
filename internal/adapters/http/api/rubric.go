package api

import (
	"net/http"

	"github.com/okian/verdict/internal/domain/rubric"
)

type rubricResponse struct {
	Criteria []rubric.Criterion `json:"criteria"`
	Scale    float64            `json:"scale"`
	Ceiling  float64            `json:"ceiling"`
}

type scaleRequest struct {
	Scale *float64 `json:"scale"`
}

type scaleResponse struct {
	Scale float64 `json:"scale"`
}

// handleGetRubric handles GET /v1/rubric.
func (s *Server) handleGetRubric(w http.ResponseWriter, _ *http.Request) {
	rb := s.svc.Rubric()
	if rb == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_error", nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, rubricResponse{
		Criteria: rb.Criteria(),
		Scale:    rb.Scale(),
		Ceiling:  rb.Ceiling(),
	})
}

// handleChangeScale handles PUT /v1/rubric/scale.
func (s *Server) handleChangeScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFault(w, r, err)
		return
	}
	if req.Scale == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, errMissingScale, nil)
		return
	}
	scale, err := s.svc.ChangeScale(r.Context(), callerOf(r), *req.Scale)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scaleResponse{Scale: scale})
}
