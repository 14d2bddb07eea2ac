package soil

import "strconv"

// RecentSampleCount is how many samples the dashboard lists.
const RecentSampleCount = 5

// LatestMetrics are the readings of the newest sample, formatted for display.
type LatestMetrics struct {
	PHLevel         string  `json:"phLevel"`
	WaterLevel      string  `json:"waterLevel"`
	SoilHealth      string  `json:"soilHealth"`
	NitrogenLevel   string  `json:"nitrogenLevel"`
	PhosphorusLevel string  `json:"phosphorusLevel"`
	PotassiumLevel  string  `json:"potassiumLevel"`
	HealthStatus    string  `json:"healthStatus,omitempty"`
	RecentDate      *string `json:"recentDate"`
	SampleCount     int     `json:"sampleCount"`
}

// Summary is the dashboard home payload.
type Summary struct {
	UserID        string        `json:"userId"`
	LatestMetrics LatestMetrics `json:"latestMetrics"`
	RecentSamples []Sample      `json:"recentSamples"`
	SampleCount   int           `json:"sampleCount"`
	Tips          []string      `json:"tips"`
}

// Summarize builds the dashboard summary. recent must be ordered newest
// first; only the first RecentSampleCount are kept. total is the user's
// full sample count.
func Summarize(userID string, recent []Sample, total int, tips []string) Summary {
	if len(recent) > RecentSampleCount {
		recent = recent[:RecentSampleCount]
	}
	if recent == nil {
		recent = []Sample{}
	}
	return Summary{
		UserID:        userID,
		LatestMetrics: latestMetrics(recent, total),
		RecentSamples: recent,
		SampleCount:   total,
		Tips:          tips,
	}
}

func latestMetrics(recent []Sample, total int) LatestMetrics {
	if len(recent) == 0 {
		return LatestMetrics{
			PHLevel:         "N/A",
			WaterLevel:      "0.0",
			SoilHealth:      "0.0",
			NitrogenLevel:   "0.0",
			PhosphorusLevel: "0.0",
			PotassiumLevel:  "0.0",
			SampleCount:     total,
		}
	}
	s := recent[0]
	date := s.FormattedDate()
	return LatestMetrics{
		PHLevel:         fixed1(s.PHLevel),
		WaterLevel:      fixed1(s.WaterLevel),
		SoilHealth:      fixed1(s.SoilHealth),
		NitrogenLevel:   fixed1(s.NitrogenLevel),
		PhosphorusLevel: fixed1(s.PhosphorusLevel),
		PotassiumLevel:  fixed1(s.PotassiumLevel),
		HealthStatus:    s.HealthStatus(),
		RecentDate:      &date,
		SampleCount:     total,
	}
}

func fixed1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
