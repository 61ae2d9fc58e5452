package repositories

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// ChatMessageRepository defines the interface for assistant conversation storage
type ChatMessageRepository interface {
	// Create stores a message
	Create(ctx context.Context, msg *entities.ChatMessage) error

	// ListRecent retrieves the newest limit messages for a patient in chronological order
	ListRecent(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error)
}
