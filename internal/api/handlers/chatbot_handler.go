package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// ChatAssistant is the chat surface used by ChatbotHandler
type ChatAssistant interface {
	Send(ctx context.Context, patientID, text string) (*services.ChatReply, error)
	History(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error)
}

// ChatbotHandler handles the patient health assistant
type ChatbotHandler struct {
	service ChatAssistant
	timeout time.Duration
}

// NewChatbotHandler creates a new chatbot handler
func NewChatbotHandler(service ChatAssistant, timeout time.Duration) *ChatbotHandler {
	return &ChatbotHandler{service: service, timeout: timeout}
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

// Message handles POST /api/chatbot/message
func (h *ChatbotHandler) Message(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var req chatMessageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	reply, err := h.service.Send(ctx, principal.ID, req.Message)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reply)
}

// History handles GET /api/chatbot/history?limit=
func (h *ChatbotHandler) History(w http.ResponseWriter, r *http.Request) {
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

	msgs, err := h.service.History(ctx, principal.ID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}
