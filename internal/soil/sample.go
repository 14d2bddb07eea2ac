// Package soil holds the soil sample model and the analysis helpers built
// on it: simulated sensor readings, health grades, tips and the dashboard
// summary.
package soil

import (
	"math"
	"math/rand/v2"
	"time"
)

// Sample statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Bounds of the simulated readings.
const (
	MinPH = 5.5
	MaxPH = 8.5
	// Water, nitrogen, phosphorus, potassium and health are percentages.
	MaxPercent = 100.0
)

// Sample is one soil analysis submitted by a user.
type Sample struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Name            string    `json:"name"`
	PHLevel         float64   `json:"phLevel"`
	WaterLevel      float64   `json:"waterLevel"`
	SoilHealth      float64   `json:"soilHealth"`
	NitrogenLevel   float64   `json:"nitrogenLevel"`
	PhosphorusLevel float64   `json:"phosphorusLevel"`
	PotassiumLevel  float64   `json:"potassiumLevel"`
	Notes           string    `json:"notes,omitempty"`
	Location        string    `json:"location,omitempty"`
	SubmittedAt     time.Time `json:"submittedAt"`
	Status          string    `json:"status"`
}

// HealthStatus grades the sample's soil health score.
func (s Sample) HealthStatus() string { return HealthStatus(s.SoilHealth) }

// FormattedDate returns the submission day as YYYY-MM-DD.
func (s Sample) FormattedDate() string { return s.SubmittedAt.UTC().Format(time.DateOnly) }

// HealthStatus maps a 0-100 score to a grade.
func HealthStatus(score float64) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Average"
	case score >= 20:
		return "Poor"
	default:
		return "Critical"
	}
}

// Submission is the user supplied part of a new sample.
type Submission struct {
	Name     string
	Location string
	Notes    string
}

// Generate fills a sample with simulated readings: pH uniform in
// [MinPH, MaxPH], the other metrics uniform in [0, 100], each rounded to
// one decimal. ID is left for the store to assign.
func Generate(rng *rand.Rand, userID string, sub Submission, now time.Time) Sample {
	return Sample{
		UserID:          userID,
		Name:            sub.Name,
		Location:        sub.Location,
		Notes:           sub.Notes,
		PHLevel:         round1(MinPH + rng.Float64()*(MaxPH-MinPH)),
		WaterLevel:      round1(rng.Float64() * MaxPercent),
		NitrogenLevel:   round1(rng.Float64() * MaxPercent),
		PhosphorusLevel: round1(rng.Float64() * MaxPercent),
		PotassiumLevel:  round1(rng.Float64() * MaxPercent),
		SoilHealth:      round1(rng.Float64() * MaxPercent),
		SubmittedAt:     now,
		Status:          StatusCompleted,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
