package models

import "time"

// Stat holds min/max/avg of one metric. All zero when there is no data.
type Stat struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// AggregateWindow represents aggregated statistics over (Start, End]
type AggregateWindow struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Download Stat      `json:"download"`
	Upload   Stat      `json:"upload"`
	Samples  int       `json:"samples"`  // successful samples
	Failures int       `json:"failures"` // failed samples
	Total    int       `json:"total"`
}

// FailureRate returns failures as a percentage of all attempts.
func (w AggregateWindow) FailureRate() float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(w.Failures) * 100 / float64(w.Total)
}

// DistributionPoint is one successful sample used for distribution and time
// series charts.
type DistributionPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Download  float64   `json:"download"`
	Upload    float64   `json:"upload"`
}

// HourlyPoint represents average throughput for one hour of the day
type HourlyPoint struct {
	Hour        int     `json:"hour"`
	AvgDownload float64 `json:"avg_download"`
	AvgUpload   float64 `json:"avg_upload"`
	Samples     int     `json:"samples"`
}

// Report is everything the dashboard needs for one page render.
type Report struct {
	GeneratedAt         time.Time           `json:"generated_at"`
	Offset              int                 `json:"offset"`
	MaxOffset           int                 `json:"max_offset"`
	Period              AggregateWindow     `json:"period"`
	Overall             AggregateWindow     `json:"overall"`
	PeriodDistribution  []DistributionPoint `json:"period_distribution"`
	OverallDistribution []DistributionPoint `json:"overall_distribution"`
	Hourly              []HourlyPoint       `json:"hourly"`
	Recent              []SpeedSample       `json:"recent"`
	LastSample          *SpeedSample        `json:"last_sample,omitempty"`
}
