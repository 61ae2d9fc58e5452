package services

import (
	"fmt"
	"strings"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

const (
	// RecommendationDisclaimer opens every patient-facing recommendation summary
	RecommendationDisclaimer = "AI suggestions — not a prescription. Doctor approval required."

	// HeuristicModelName marks recommendations produced without the AI provider
	HeuristicModelName = "heuristic-demo"

	// HeuristicConfidence is deliberately below the model default of 75
	HeuristicConfidence = 60

	heuristicReasoning = "Heuristic demo: Based on average BP and common first-line antihypertensives. This is NOT a prescription. Doctor review required."
)

// Thresholds in mmHg
const (
	stage2Systolic  = 140
	stage2Diastolic = 90
	stage1Systolic  = 130
	stage1Diastolic = 80
)

type heuristicResult struct {
	Medications     []entities.Medication
	LifestyleAdvice []string
	Reasoning       string
	Confidence      int
}

// heuristicRecommendation is a pure function of the two averages
func heuristicRecommendation(avgSystolic, avgDiastolic int) heuristicResult {
	res := heuristicResult{
		Medications: []entities.Medication{},
		Reasoning:   heuristicReasoning,
		Confidence:  HeuristicConfidence,
	}

	switch {
	case avgSystolic >= stage2Systolic || avgDiastolic >= stage2Diastolic:
		res.Medications = append(res.Medications, entities.Medication{
			Name:         "Amlodipine",
			Dosage:       "5mg",
			Frequency:    "Once daily",
			Cost:         12.5,
			Availability: entities.AvailabilityHigh,
			SideEffects:  []string{"Swelling of ankles", "Headache", "Dizziness"},
		})
	case avgSystolic >= stage1Systolic || avgDiastolic >= stage1Diastolic:
		res.Medications = append(res.Medications, entities.Medication{
			Name:         "Hydrochlorothiazide",
			Dosage:       "12.5mg",
			Frequency:    "Once daily in morning",
			Cost:         8.75,
			Availability: entities.AvailabilityHigh,
			SideEffects:  []string{"Increased urination", "Dizziness", "Low potassium"},
		})
	}

	if avgSystolic >= stage1Systolic || avgDiastolic >= stage1Diastolic {
		res.LifestyleAdvice = []string{
			"Reduce sodium intake to under 2,000mg/day",
			"Walk briskly for 30 minutes at least 5 days/week",
			"Limit alcohol and avoid tobacco",
		}
	} else {
		res.LifestyleAdvice = []string{
			"Maintain balanced DASH-style diet",
			"Keep regular physical activity routine",
		}
	}

	return res
}

// buildPatientMessage renders the disclaimer followed by one numbered line per medication
func buildPatientMessage(meds []entities.Medication) string {
	lines := make([]string, 0, len(meds)+1)
	lines = append(lines, RecommendationDisclaimer)

	for i, m := range meds {
		price := "N/A"
		if m.Cost > 0 {
			price = fmt.Sprintf("$%.2f", m.Cost)
		}
		avail := string(m.Availability)
		if avail == "" {
			avail = "unknown"
		}
		name := strings.TrimSpace(m.Name + " " + m.Dosage)
		lines = append(lines, fmt.Sprintf("%d) %s — %s — ~%s (%s availability)", i+1, name, m.Frequency, price, avail))
	}

	return strings.Join(lines, "\n")
}
