package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// BPReadingRepository defines the interface for blood pressure reading data operations
type BPReadingRepository interface {
	// CreateWithinDailyQuota inserts the reading only if the patient holds fewer
	// than limit readings for reading.LocalDay. The check and the insert are one
	// atomic write. On success reading.DaySeq is set and the new day count is
	// returned; otherwise a QUOTA_EXCEEDED AppError carrying the count.
	CreateWithinDailyQuota(ctx context.Context, reading *entities.BPReading, limit int) (int, error)

	// ListByPatient retrieves readings for a patient ordered newest first
	ListByPatient(ctx context.Context, patientID string, filter BPReadingFilter) ([]*entities.BPReading, error)

	// CountForDay counts a patient's readings on a local day (YYYY-MM-DD)
	CountForDay(ctx context.Context, patientID, localDay string) (int, error)
}

// BPReadingFilter defines filters for listing readings
type BPReadingFilter struct {
	From     *time.Time
	To       *time.Time
	LocalDay string
	Limit    int
}
