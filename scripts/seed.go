package main

import (
	"context"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bpcare/internal/adapters/database"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	"github.com/zatekoja/bpcare/pkg/config"
)

// Demo accounts. Send these ids in X-User-ID to act as each user.
var (
	demoPatients = []seedUser{
		{ID: "patient-demo-1", Email: "ama@example.com", FullName: "Ama Mensah", Gender: "female", City: "Accra", Country: "Ghana", IncomeRange: "middle", DOB: "1968-04-12"},
		{ID: "patient-demo-2", Email: "tunde@example.com", FullName: "Tunde Bello", Gender: "male", City: "Lagos", State: "Lagos", Country: "Nigeria", IncomeRange: "low", DOB: "1975-09-30"},
	}
	demoDoctors = []seedUser{
		{ID: "doctor-demo-1", Email: "dr.owusu@example.com", FullName: "Kwame Owusu", DoctorName: "Dr. Owusu", Specialization: "Cardiology", City: "Accra", Country: "Ghana"},
		{ID: "doctor-demo-2", Email: "dr.adeyemi@example.com", FullName: "Funke Adeyemi", DoctorName: "Dr. Adeyemi", Specialization: "Internal Medicine", City: "Lagos", Country: "Nigeria"},
		{ID: "doctor-demo-3", Email: "dr.kamau@example.com", FullName: "Wanjiru Kamau", DoctorName: "Dr. Kamau", Specialization: "Family Medicine", City: "Nairobi", Country: "Kenya"},
	}
)

type seedUser struct {
	ID, Email, FullName, DoctorName, Specialization string
	Gender, City, State, Country, IncomeRange, DOB  string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("bpcare-seed", cfg.Env)

	ctx := context.Background()
	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer pgClient.Close()

	if path := os.Getenv("SCHEMA_FILE"); path != "" {
		schema, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to read schema")
		}
		if _, err := pgClient.DB().ExecContext(ctx, string(schema)); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		log.Info().Str("path", path).Msg("schema applied")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				chat_messages,
				recommendations,
				doctor_links,
				bp_readings,
				medical_records,
				users
			CASCADE
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to truncate tables")
		}
	}

	db := goqu.New("postgres", pgClient.DB())
	now := time.Now().UTC()

	for _, u := range demoPatients {
		insertUser(ctx, db, u, entities.UserRolePatient, now)
	}
	for _, u := range demoDoctors {
		insertUser(ctx, db, u, entities.UserRoleDoctor, now)
	}

	records := []goqu.Record{
		medicalRecord("patient-demo-1", entities.MedicalRecordTypeCondition, "Hypertension", "", now.AddDate(-3, 0, 0)),
		medicalRecord("patient-demo-1", entities.MedicalRecordTypeMedication, "Amlodipine", "5mg", now.AddDate(-1, 0, 0)),
		medicalRecord("patient-demo-1", entities.MedicalRecordTypeAllergy, "Penicillin", "", now.AddDate(-10, 0, 0)),
		medicalRecord("patient-demo-2", entities.MedicalRecordTypeCondition, "Type 2 diabetes", "", now.AddDate(-2, 0, 0)),
	}
	query, args, err := db.Insert("medical_records").Rows(records).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build medical records insert")
	}
	if _, err := pgClient.DB().ExecContext(ctx, query, args...); err != nil {
		log.Fatal().Err(err).Msg("failed to seed medical records")
	}

	seedReadings(ctx, pgClient, now)
	seedLinks(ctx, pgClient, cfg.Clinical.MaxActiveDoctorLink)

	log.Info().
		Int("patients", len(demoPatients)).
		Int("doctors", len(demoDoctors)).
		Msg("seed complete")
}

func insertUser(ctx context.Context, db *goqu.Database, u seedUser, role entities.UserRole, now time.Time) {
	record := goqu.Record{
		"id":             u.ID,
		"email":          u.Email,
		"role":           string(role),
		"full_name":      u.FullName,
		"doctor_name":    u.DoctorName,
		"specialization": u.Specialization,
		"gender":         u.Gender,
		"city":           u.City,
		"state":          u.State,
		"country":        u.Country,
		"income_range":   u.IncomeRange,
		"created_at":     now,
		"updated_at":     now,
	}
	if u.DOB != "" {
		record["date_of_birth"] = u.DOB
	}

	query, args, err := db.Insert("users").Rows(record).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build user insert")
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		log.Fatal().Err(err).Str("user_id", u.ID).Msg("failed to seed user")
	}
}

func medicalRecord(patientID string, kind entities.MedicalRecordType, title, dosage string, date time.Time) goqu.Record {
	return goqu.Record{
		"id":         uuid.New().String(),
		"patient_id": patientID,
		"type":       string(kind),
		"title":      title,
		"status":     string(entities.MedicalRecordStatusActive),
		"dosage":     dosage,
		"date":       date,
		"created_at": date,
	}
}

// seedReadings writes a week of morning and evening readings for the first patient
func seedReadings(ctx context.Context, client *postgres.Client, now time.Time) {
	readings := database.NewBPReadingAdapter(client)
	base := []struct{ sys, dia int }{{148, 94}, {142, 91}, {139, 88}, {151, 96}, {137, 87}, {144, 92}, {140, 90}}

	for i, v := range base {
		day := now.AddDate(0, 0, -(len(base) - i))
		for j, slot := range []entities.TimeSlot{entities.TimeSlotMorning, entities.TimeSlotEvening} {
			ts := day.Add(time.Duration(j*10) * time.Hour)
			r := &entities.BPReading{
				ID:        uuid.New().String(),
				PatientID: demoPatients[0].ID,
				Systolic:  v.sys - j*3,
				Diastolic: v.dia - j*2,
				HeartRate: 72 + j,
				Source:    entities.ReadingSourceManual,
				Timestamp: ts,
				TimeSlot:  slot,
				LocalDay:  ts.Format("2006-01-02"),
				CreatedAt: now,
			}
			if _, err := readings.CreateWithinDailyQuota(ctx, r, 5); err != nil {
				log.Warn().Err(err).Str("day", r.LocalDay).Msg("skipped reading")
			}
		}
	}
}

// seedLinks gives the first patient one approved and one pending doctor
func seedLinks(ctx context.Context, client *postgres.Client, maxActive int) {
	links := database.NewDoctorLinkAdapter(client)
	created, err := links.CreateRequested(ctx, demoPatients[0].ID, []string{demoDoctors[0].ID, demoDoctors[1].ID}, maxActive)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed doctor links")
	}
	for _, link := range created {
		if link.DoctorID != demoDoctors[0].ID {
			continue
		}
		respondedAt := time.Now().UTC()
		link.Status = entities.DoctorLinkStatusApproved
		link.Comment = "Happy to follow your readings."
		link.RespondedAt = &respondedAt
		link.UpdatedAt = respondedAt
		if err := links.Respond(ctx, link); err != nil {
			log.Fatal().Err(err).Msg("failed to approve doctor link")
		}
	}
}
