package reporting

import (
	"fmt"
	"strings"

	"backing-lab/internal/domain"
)

// RenderCSV renders a unified series as CSV. Absent values are empty cells.
func RenderCSV(points []domain.ProjectedPoint) string {
	var sb strings.Builder

	sb.WriteString("date,day_index,backing_ratio,discount,trend_value,linear_trend,sine_trend\n")

	for _, p := range points {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%.10f,%.10f,%s\n",
			domain.DayKey(p.Date),
			p.DayIndex,
			optional(p.BackingRatio),
			optional(p.Discount),
			p.TrendValue,
			p.LinearTrend,
			optional(p.SineTrend),
		))
	}

	return sb.String()
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.10f", *v)
}
