package reporting

import (
	"fmt"
	"strings"
	"time"

	"backing-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
// maxRows limits the series table to the last maxRows points; 0 renders all of them.
func RenderMarkdown(r *Report, maxRows int) string {
	var sb strings.Builder

	// Header
	title := r.InstrumentID
	if r.InstrumentName != "" {
		title = fmt.Sprintf("%s (%s)", r.InstrumentName, r.InstrumentID)
	}
	sb.WriteString(fmt.Sprintf("# Backing Projection: %s\n\n", title))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s` computed %s\n\n", r.RunID, r.ComputedAt.Format(time.RFC3339)))
	}

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Historical Days | %d |\n", s.HistoricalDays))
	sb.WriteString(fmt.Sprintf("| Projected Days | %d |\n", s.ProjectedDays))
	if s.HistoricalDays > 0 {
		sb.WriteString(fmt.Sprintf("| Last Observed | %s |\n", domain.DayKey(s.LastObservedDate)))
		sb.WriteString(fmt.Sprintf("| Last Backing Ratio | %.8f |\n", s.LastBackingRatio))
	}
	if s.LastDiscount != nil {
		sb.WriteString(fmt.Sprintf("| Last Discount | %.6f |\n", *s.LastDiscount))
	} else {
		sb.WriteString("| Last Discount | n/a |\n")
	}
	if !s.HorizonDate.IsZero() {
		sb.WriteString(fmt.Sprintf("| Horizon | %s |\n", domain.DayKey(s.HorizonDate)))
		sb.WriteString(fmt.Sprintf("| Horizon Trend | %.8f |\n", s.HorizonTrend))
		sb.WriteString(fmt.Sprintf("| Horizon Linear | %.8f |\n", s.HorizonLinear))
	}
	sb.WriteString("\n")

	// Models
	if len(r.Models) > 0 {
		sb.WriteString("## Fitted Models\n\n")
		sb.WriteString("| Kind | Anchor Day | Anchor Value | Slope | Coefficient |\n")
		sb.WriteString("|------|------------|--------------|-------|-------------|\n")
		for _, m := range r.Models {
			slope, coef := param(m, 0), param(m, 1)
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.8g | %.4f |\n",
				m.Kind, m.AnchorDay, m.AnchorValue, slope, coef))
		}
		sb.WriteString("\n")
	}

	// Data Quality
	q := r.DataQuality
	sb.WriteString("## Data Quality\n\n")
	if q.MalformedFields == 0 && q.DroppedRecords == 0 && q.DuplicateDays == 0 {
		sb.WriteString("No input issues recorded.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("- Malformed fields coerced to null: %d\n", q.MalformedFields))
		sb.WriteString(fmt.Sprintf("- Undated records dropped: %d\n", q.DroppedRecords))
		sb.WriteString(fmt.Sprintf("- Duplicate days overwritten: %d\n\n", q.DuplicateDays))
	}
	if len(q.RecentRuns) > 0 {
		sb.WriteString("### Recent Runs\n\n")
		sb.WriteString("| Run | Started | Status | Points | Error |\n")
		sb.WriteString("|-----|---------|--------|--------|-------|\n")
		for _, run := range q.RecentRuns {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
				run.RunID, run.StartedAt.Format(time.RFC3339), run.Status, run.Points,
				strings.ReplaceAll(run.Error, "|", "\\|")))
		}
		sb.WriteString("\n")
	}

	// Series
	sb.WriteString("## Series\n\n")
	points := r.Points
	if maxRows > 0 && len(points) > maxRows {
		sb.WriteString(fmt.Sprintf("Showing last %d of %d points.\n\n", maxRows, len(points)))
		points = points[len(points)-maxRows:]
	}
	if len(points) == 0 {
		sb.WriteString("No points available.\n")
		return sb.String()
	}
	sb.WriteString("| Date | Day | Backing | Discount | Trend | Linear | Sine |\n")
	sb.WriteString("|------|-----|---------|----------|-------|--------|------|\n")
	for _, p := range points {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %.6f | %.6f | %s |\n",
			domain.DayKey(p.Date), p.DayIndex,
			cell(p.BackingRatio), cell(p.Discount),
			p.TrendValue, p.LinearTrend, cell(p.SineTrend)))
	}
	sb.WriteString("\n")

	return sb.String()
}

func cell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f", *v)
}

func param(m domain.RegressionModel, i int) float64 {
	if i < len(m.FittedParameters) {
		return m.FittedParameters[i]
	}
	return 0
}
