package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
	"github.com/zatekoja/bpcare/pkg/retry"
)

const pqUniqueViolation = "23505"

// insertWithinQuota appends the reading as the next day_seq only while the
// patient holds fewer than $12 readings for the day. Two writers racing for
// the same day_seq collide on the (patient_id, local_day, day_seq) unique key.
const insertWithinQuota = `
	WITH today AS (
		SELECT COUNT(*) AS n FROM bp_readings WHERE patient_id = $2 AND local_day = $9
	)
	INSERT INTO bp_readings (
		id, patient_id, systolic, diastolic, heart_rate, source,
		timestamp, time_slot, local_day, notes, day_seq, created_at
	)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, today.n + 1, $11
	FROM today
	WHERE today.n < $12
	RETURNING day_seq
`

var bpReadingColumns = []interface{}{
	"id", "patient_id", "systolic", "diastolic", "heart_rate", "source",
	"timestamp", "time_slot", "local_day", "notes", "day_seq", "created_at",
}

// BPReadingAdapter persists blood pressure readings
type BPReadingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBPReadingAdapter creates a new BP reading adapter
func NewBPReadingAdapter(client *postgres.Client) repositories.BPReadingRepository {
	return &BPReadingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CreateWithinDailyQuota inserts the reading unless the day is already full
func (a *BPReadingAdapter) CreateWithinDailyQuota(ctx context.Context, reading *entities.BPReading, limit int) (int, error) {
	if reading == nil {
		return 0, apperrors.NewInternalError("reading is nil", errors.New("reading is nil"))
	}

	var daySeq int
	cfg := retry.Config{
		MaxAttempts:   5,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2,
		Retryable:     isUniqueViolation,
	}
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return a.client.DB().QueryRowContext(ctx, insertWithinQuota,
			reading.ID,
			reading.PatientID,
			reading.Systolic,
			reading.Diastolic,
			sql.NullInt64{Int64: int64(reading.HeartRate), Valid: reading.HeartRate > 0},
			string(reading.Source),
			reading.Timestamp,
			string(reading.TimeSlot),
			reading.LocalDay,
			reading.Notes,
			reading.CreatedAt,
			limit,
		).Scan(&daySeq)
	})

	if errors.Is(err, sql.ErrNoRows) {
		count, countErr := a.CountForDay(ctx, reading.PatientID, reading.LocalDay)
		if countErr != nil {
			count = limit
		}
		return count, apperrors.NewQuotaExceededError(count, limit)
	}
	if err != nil {
		return 0, apperrors.NewInternalError("failed to create reading", err)
	}

	reading.DaySeq = daySeq
	return daySeq, nil
}

// ListByPatient retrieves readings for a patient, newest first
func (a *BPReadingAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.BPReadingFilter) ([]*entities.BPReading, error) {
	ds := a.db.Select(bpReadingColumns...).
		From("bp_readings").
		Where(goqu.Ex{"patient_id": patientID}).
		Order(goqu.I("timestamp").Desc())

	if filter.From != nil {
		ds = ds.Where(goqu.C("timestamp").Gte(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("timestamp").Lt(*filter.To))
	}
	if filter.LocalDay != "" {
		ds = ds.Where(goqu.Ex{"local_day": filter.LocalDay})
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DBX().QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list readings", err)
	}
	defer rows.Close()

	readings := []*entities.BPReading{}
	for rows.Next() {
		var (
			r         entities.BPReading
			heartRate sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &r.PatientID, &r.Systolic, &r.Diastolic, &heartRate, &r.Source,
			&r.Timestamp, &r.TimeSlot, &r.LocalDay, &r.Notes, &r.DaySeq, &r.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan reading", err)
		}
		r.HeartRate = int(heartRate.Int64)
		readings = append(readings, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate readings", err)
	}
	return readings, nil
}

// CountForDay counts a patient's readings on a local day
func (a *BPReadingAdapter) CountForDay(ctx context.Context, patientID, localDay string) (int, error) {
	query, args, err := a.db.Select(goqu.COUNT("*")).
		From("bp_readings").
		Where(goqu.Ex{"patient_id": patientID, "local_day": localDay}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build query", err)
	}

	var count int
	if err := a.client.DBX().GetContext(ctx, &count, query, args...); err != nil {
		return 0, apperrors.NewInternalError("failed to count readings", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
