package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// RecommendationWorkflow is the recommendation surface used by RecommendationHandler
type RecommendationWorkflow interface {
	Generate(ctx context.Context, patientID string, assignedDoctorIDs []string) (*entities.Recommendation, error)
	Approve(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error)
	Reject(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error)
	Modify(ctx context.Context, id, doctorID, notes string, medications []services.MedicationInput) (*entities.Recommendation, error)
	AssignDoctors(ctx context.Context, id, patientID string, doctorIDs []string) (*entities.Recommendation, error)
	SelectMedications(ctx context.Context, id, patientID string, selection []services.MedicationInput, doctorIDs []string) (*entities.Recommendation, error)
	Get(ctx context.Context, id string, principal entities.Principal) (*entities.Recommendation, error)
	ListForPatient(ctx context.Context, patientID string, status entities.RecommendationStatus, limit int) (*services.RecommendationList, error)
	ListPendingForDoctor(ctx context.Context, doctorID string, limit int) ([]*entities.Recommendation, error)
}

// RecommendationHandler handles recommendation generation and review
type RecommendationHandler struct {
	service RecommendationWorkflow
	timeout time.Duration
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(service RecommendationWorkflow, timeout time.Duration) *RecommendationHandler {
	return &RecommendationHandler{service: service, timeout: timeout}
}

type generateRequest struct {
	AssignedDoctorIDs []string `json:"assigned_doctor_ids"`
}

type reviewRequest struct {
	Notes       string                     `json:"notes"`
	Medications []services.MedicationInput `json:"medications"`
}

type assignRequest struct {
	DoctorIDs []string `json:"doctor_ids"`
}

type selectMedicationsRequest struct {
	Medications []services.MedicationInput `json:"medications"`
	DoctorIDs   []string                   `json:"doctor_ids"`
}

// Generate handles POST /api/recommendations/generate
func (h *RecommendationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var req generateRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	rec, err := h.service.Generate(ctx, principal.ID, req.AssignedDoctorIDs)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/recommendations?status=&limit=
func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	list, err := h.service.ListForPatient(ctx, principal.ID, entities.RecommendationStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// ListPending handles GET /api/recommendations/pending
func (h *RecommendationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRoleDoctor)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	recs, err := h.service.ListPendingForDoctor(ctx, principal.ID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": recs,
		"count": len(recs),
	})
}

// Get handles GET /api/recommendations/{id}
func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, "")
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	rec, err := h.service.Get(ctx, r.PathValue("id"), principal)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// Approve handles PUT /api/recommendations/{id}/approve
func (h *RecommendationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(ctx context.Context, id, doctorID string, req reviewRequest) (*entities.Recommendation, error) {
		return h.service.Approve(ctx, id, doctorID, req.Notes)
	})
}

// Reject handles PUT /api/recommendations/{id}/reject
func (h *RecommendationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(ctx context.Context, id, doctorID string, req reviewRequest) (*entities.Recommendation, error) {
		return h.service.Reject(ctx, id, doctorID, req.Notes)
	})
}

// Modify handles PUT /api/recommendations/{id}/modify
func (h *RecommendationHandler) Modify(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(ctx context.Context, id, doctorID string, req reviewRequest) (*entities.Recommendation, error) {
		return h.service.Modify(ctx, id, doctorID, req.Notes, req.Medications)
	})
}

type reviewFunc func(ctx context.Context, id, doctorID string, req reviewRequest) (*entities.Recommendation, error)

func (h *RecommendationHandler) review(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	principal, ok := requirePrincipal(w, r, entities.UserRoleDoctor)
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	rec, err := fn(ctx, r.PathValue("id"), principal.ID, req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// Assign handles POST /api/recommendations/{id}/assign
func (h *RecommendationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var req assignRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	rec, err := h.service.AssignDoctors(ctx, r.PathValue("id"), principal.ID, req.DoctorIDs)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// SelectMedications handles PUT /api/recommendations/{id}/select-medications
func (h *RecommendationHandler) SelectMedications(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var req selectMedicationsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	rec, err := h.service.SelectMedications(ctx, r.PathValue("id"), principal.ID, req.Medications, req.DoctorIDs)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}
