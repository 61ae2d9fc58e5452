package entities_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

func TestClassifyBP(t *testing.T) {
	tests := []struct {
		sys, dia int
		want     entities.BPClassification
	}{
		{115, 75, entities.BPClassificationNormal},
		{125, 75, entities.BPClassificationElevated},
		{125, 85, entities.BPClassificationStage1},
		{135, 70, entities.BPClassificationStage1},
		{145, 95, entities.BPClassificationStage2},
		{150, 85, entities.BPClassificationStage1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, entities.ClassifyBP(tt.sys, tt.dia), "%d/%d", tt.sys, tt.dia)
	}
}

func TestTimeSlot_Valid(t *testing.T) {
	for _, slot := range entities.AllTimeSlots {
		assert.True(t, slot.Valid())
	}
	assert.False(t, entities.TimeSlot("midnight").Valid())
}

func TestUser_AgeAndRegion(t *testing.T) {
	dob := time.Date(1980, time.June, 15, 0, 0, 0, 0, time.UTC)
	u := &entities.User{DateOfBirth: &dob, City: "Lagos", Country: "Nigeria"}

	age := u.Age(time.Date(2026, time.June, 14, 0, 0, 0, 0, time.UTC))
	if assert.NotNil(t, age) {
		assert.Equal(t, 45, *age)
	}
	assert.Equal(t, "Lagos, Nigeria", u.Region())

	assert.Nil(t, (&entities.User{}).Age(time.Now()))
}
