package entities

import "time"

// ReadingSource tells how a reading entered the system
type ReadingSource string

const (
	ReadingSourceManual ReadingSource = "manual"
	ReadingSourceIoT    ReadingSource = "iot"
)

// Valid reports whether the source is known
func (s ReadingSource) Valid() bool {
	return s == ReadingSourceManual || s == ReadingSourceIoT
}

// TimeSlot is one of the five fixed daily intake intervals
type TimeSlot string

const (
	TimeSlotMorning     TimeSlot = "morning"
	TimeSlotLateMorning TimeSlot = "late-morning"
	TimeSlotAfternoon   TimeSlot = "afternoon"
	TimeSlotEvening     TimeSlot = "evening"
	TimeSlotNight       TimeSlot = "night"
)

// AllTimeSlots lists the slots in the order they occur during the day
var AllTimeSlots = []TimeSlot{
	TimeSlotMorning,
	TimeSlotLateMorning,
	TimeSlotAfternoon,
	TimeSlotEvening,
	TimeSlotNight,
}

// Valid reports whether the slot is one of the five named slots
func (s TimeSlot) Valid() bool {
	for _, slot := range AllTimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// BPReading is a single blood-pressure measurement
type BPReading struct {
	ID        string        `json:"id" db:"id"`
	PatientID string        `json:"patient_id" db:"patient_id"`
	Systolic  int           `json:"systolic" db:"systolic"`
	Diastolic int           `json:"diastolic" db:"diastolic"`
	HeartRate int           `json:"heart_rate" db:"heart_rate"`
	Source    ReadingSource `json:"source" db:"source"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
	TimeSlot  TimeSlot      `json:"time_slot" db:"time_slot"`
	Notes     string        `json:"notes" db:"notes"`
	// LocalDay is the intake calendar day (YYYY-MM-DD) in the configured timezone.
	LocalDay string `json:"local_day" db:"local_day"`
	// DaySeq is the 1-based position of the reading within LocalDay.
	DaySeq    int       `json:"day_seq" db:"day_seq"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BPClassification buckets a pair of pressures into the ACC/AHA categories
type BPClassification string

const (
	BPClassificationNormal   BPClassification = "Normal"
	BPClassificationElevated BPClassification = "Elevated"
	BPClassificationStage1   BPClassification = "High BP Stage 1"
	BPClassificationStage2   BPClassification = "High BP Stage 2"
)

// ClassifyBP returns the category for the given systolic/diastolic values
func ClassifyBP(systolic, diastolic int) BPClassification {
	switch {
	case systolic < 120 && diastolic < 80:
		return BPClassificationNormal
	case systolic < 130 && diastolic < 80:
		return BPClassificationElevated
	case systolic < 140 || diastolic < 90:
		return BPClassificationStage1
	default:
		return BPClassificationStage2
	}
}
