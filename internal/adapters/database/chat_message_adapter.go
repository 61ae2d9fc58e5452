package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

// ChatMessageAdapter persists assistant conversations
type ChatMessageAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewChatMessageAdapter creates a new chat message adapter
func NewChatMessageAdapter(client *postgres.Client) repositories.ChatMessageRepository {
	return &ChatMessageAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create stores a message
func (a *ChatMessageAdapter) Create(ctx context.Context, msg *entities.ChatMessage) error {
	query, args, err := a.db.Insert("chat_messages").Rows(goqu.Record{
		"id":         msg.ID,
		"patient_id": msg.PatientID,
		"role":       string(msg.Role),
		"content":    msg.Content,
		"timestamp":  msg.Timestamp,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create chat message", err)
	}
	return nil
}

// ListRecent returns the newest limit messages in chronological order
func (a *ChatMessageAdapter) ListRecent(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error) {
	query, args, err := a.db.Select("id", "patient_id", "role", "content", "timestamp").
		From("chat_messages").
		Where(goqu.Ex{"patient_id": patientID}).
		Order(goqu.I("timestamp").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	msgs := []*entities.ChatMessage{}
	if err := a.client.DBX().SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list chat messages", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
