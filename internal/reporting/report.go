package reporting

import (
	"time"

	"backing-lab/internal/domain"
)

// Report describes one instrument's projection for human consumption.
type Report struct {
	// Metadata
	GeneratedAt    time.Time
	InstrumentID   string
	InstrumentName string
	RunID          string
	ComputedAt     time.Time

	Summary     Summary
	DataQuality DataQualitySection

	// Fitted models, present only when the report is built from a fresh engine run.
	Models []domain.RegressionModel

	// Full unified series, ascending by day
	Points []domain.ProjectedPoint
}

// Summary condenses the series into its headline values.
type Summary struct {
	HistoricalDays   int       `json:"historicalDays"`
	ProjectedDays    int       `json:"projectedDays"`
	FirstDate        time.Time `json:"firstDate"`
	LastObservedDate time.Time `json:"lastObservedDate"`
	LastBackingRatio float64   `json:"lastBackingRatio"`
	LastDiscount     *float64  `json:"lastDiscount"` // most recent observed discount, nil when none in history
	HorizonDate      time.Time `json:"horizonDate"`
	HorizonTrend     float64   `json:"horizonTrend"` // combined trend value on the last projected day
	HorizonLinear    float64   `json:"horizonLinear"`
}

// DataQualitySection lists input issues and recent refresh outcomes.
type DataQualitySection struct {
	MalformedFields int
	DroppedRecords  int
	DuplicateDays   int
	RecentRuns      []RunRow
}

// RunRow is one refresh attempt.
type RunRow struct {
	RunID     string
	StartedAt time.Time
	Status    domain.RunStatus
	Points    int
	Error     string
}

// Summarize computes the headline values of a unified series.
func Summarize(points []domain.ProjectedPoint) Summary {
	var s Summary
	if len(points) == 0 {
		return s
	}
	s.FirstDate = points[0].Date

	for _, p := range points {
		if !p.IsHistorical() {
			s.ProjectedDays++
			continue
		}
		s.HistoricalDays++
		s.LastObservedDate = p.Date
		s.LastBackingRatio = *p.BackingRatio
		if p.Discount != nil {
			d := *p.Discount
			s.LastDiscount = &d
		}
	}

	last := points[len(points)-1]
	s.HorizonDate = last.Date
	s.HorizonTrend = last.TrendValue
	s.HorizonLinear = last.LinearTrend
	return s
}
