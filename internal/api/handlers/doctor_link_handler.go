package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// DoctorLinkWorkflow is the consent-link surface used by DoctorLinkHandler
type DoctorLinkWorkflow interface {
	Request(ctx context.Context, patientID string, doctorIDs []string) (*services.LinkRequestResult, error)
	Accept(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error)
	Decline(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error)
	MyDoctors(ctx context.Context, patientID string) (*services.PatientLinks, error)
	IncomingRequests(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error)
	AssignedPatients(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error)
}

// DoctorLinkHandler handles patient-doctor link requests
type DoctorLinkHandler struct {
	service DoctorLinkWorkflow
	timeout time.Duration
}

// NewDoctorLinkHandler creates a new doctor link handler
func NewDoctorLinkHandler(service DoctorLinkWorkflow, timeout time.Duration) *DoctorLinkHandler {
	return &DoctorLinkHandler{service: service, timeout: timeout}
}

type linkRequest struct {
	DoctorIDs []string `json:"doctor_ids"`
}

type linkResponseRequest struct {
	Comment string `json:"comment"`
}

// Request handles POST /api/doctor-links
func (h *DoctorLinkHandler) Request(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var req linkRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	result, err := h.service.Request(ctx, principal.ID, req.DoctorIDs)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(result.Created) > 0 {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, result)
}

// Mine handles GET /api/doctor-links/mine
func (h *DoctorLinkHandler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	links, err := h.service.MyDoctors(ctx, principal.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, links)
}

// Requests handles GET /api/doctor-links/requests
func (h *DoctorLinkHandler) Requests(w http.ResponseWriter, r *http.Request) {
	h.listForDoctor(w, r, h.service.IncomingRequests)
}

// Patients handles GET /api/doctor-links/patients
func (h *DoctorLinkHandler) Patients(w http.ResponseWriter, r *http.Request) {
	h.listForDoctor(w, r, h.service.AssignedPatients)
}

func (h *DoctorLinkHandler) listForDoctor(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]*entities.DoctorLink, error)) {
	principal, ok := requirePrincipal(w, r, entities.UserRoleDoctor)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	links, err := list(ctx, principal.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": links,
		"count": len(links),
	})
}

// Accept handles PUT /api/doctor-links/{id}/accept
func (h *DoctorLinkHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// Decline handles PUT /api/doctor-links/{id}/decline
func (h *DoctorLinkHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Decline)
}

func (h *DoctorLinkHandler) respond(w http.ResponseWriter, r *http.Request, answer func(context.Context, string, string, string) (*entities.DoctorLink, error)) {
	principal, ok := requirePrincipal(w, r, entities.UserRoleDoctor)
	if !ok {
		return
	}

	var req linkResponseRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	link, err := answer(ctx, r.PathValue("id"), principal.ID, req.Comment)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, link)
}
