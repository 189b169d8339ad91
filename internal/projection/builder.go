package projection

import (
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/regression"
)

// SeriesInput bundles everything BuildSeries needs.
type SeriesInput struct {
	Config      domain.ProjectionConfig
	History     []domain.BackingPoint // ascending, one per day
	Exponential regression.Trend
	Linear      regression.Trend
	Oscillator  *regression.Oscillator
	Now         time.Time
}

// BuildSeries emits one point per day index in [StartDay, EndDay].
//
// Historical days carry the observed ratio and discount plus both trend values.
// Days after the last historical day carry nil ratio/discount, a sine trend and a
// date of Now + (dayIndex - lastHistoricalDay) days. Days before the first
// historical point are dated from the epoch and have no sine trend.
func BuildSeries(in SeriesInput) []domain.ProjectedPoint {
	byDay := make(map[int]domain.BackingPoint, len(in.History))
	lastDay := in.Config.StartDay - 1
	for _, p := range in.History {
		byDay[p.DayIndex] = p
		if p.DayIndex > lastDay {
			lastDay = p.DayIndex
		}
	}
	today := domain.TruncateDay(in.Now)

	n := in.Config.EndDay - in.Config.StartDay + 1
	if n < 0 {
		n = 0
	}
	out := make([]domain.ProjectedPoint, 0, n)

	for day := in.Config.StartDay; day <= in.Config.EndDay; day++ {
		point := domain.ProjectedPoint{
			DayIndex:    day,
			TrendValue:  in.Exponential.Calculate(day),
			LinearTrend: in.Linear.Calculate(day),
		}

		if hist, ok := byDay[day]; ok {
			ratio := hist.BackingRatio
			point.Date = hist.Date
			point.BackingRatio = &ratio
			point.Discount = hist.Discount
		} else if day > lastDay {
			point.Date = today.AddDate(0, 0, day-lastDay)
			if in.Oscillator != nil {
				point.SineTrend = in.Oscillator.SineTrend(day)
			}
		} else {
			point.Date = in.Config.DateOf(day)
		}

		out = append(out, point)
	}

	return out
}
