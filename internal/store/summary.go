package store

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	rankingThreshold     = 5.0
	performanceThreshold = 10

	CategoryRanking     = "ranking"
	CategoryPerformance = "performance"
)

// nextSummary folds snap into prev and returns the new Summary together with
// the alerts raised by this snapshot. prev is not modified.
//
// Keyword change is previous minus current position, so a positive change is
// an improvement. Performance change is current minus previous mobile score.
func nextSummary(prev models.Summary, snap *models.Snapshot) (models.Summary, []models.Alert) {
	next := cloneSummary(prev)
	var raised []models.Alert

	keys := make([]string, 0, len(snap.Keywords))
	for k := range snap.Keywords {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		cur := snap.Keywords[k]
		old, seen := next.KeywordTrends[k]
		if cur.Position == nil || !seen || old.Position == nil {
			next.KeywordTrends[k] = models.KeywordTrend{KeywordMetric: cur}
			continue
		}
		change := round2(*old.Position - *cur.Position)
		next.KeywordTrends[k] = models.KeywordTrend{
			KeywordMetric: cur,
			Change:        &change,
			Trend:         trendOf(change),
		}
		if math.Abs(change) >= rankingThreshold {
			raised = append(raised, models.Alert{
				Type:      alertType(change),
				Category:  CategoryRanking,
				Keyword:   k,
				Change:    change,
				Message:   fmt.Sprintf("%q %s %s positions", k, direction(change, "rose", "dropped"), formatNum(math.Abs(change))),
				Timestamp: snap.Timestamp,
			})
		}
	}

	if snap.Performance != nil {
		cur := snap.Performance.Mobile.Performance
		if cur > 0 && next.PerformanceTrends != nil && next.PerformanceTrends.Performance > 0 {
			change := cur - next.PerformanceTrends.Performance
			if abs(change) >= performanceThreshold {
				raised = append(raised, models.Alert{
					Type:      alertType(float64(change)),
					Category:  CategoryPerformance,
					Change:    float64(change),
					Message:   fmt.Sprintf("Mobile performance %s by %d points", direction(float64(change), "improved", "worsened"), abs(change)),
					Timestamp: snap.Timestamp,
				})
			}
		}
		if cur > 0 {
			mobile := snap.Performance.Mobile
			next.PerformanceTrends = &mobile
		}
	}

	next.Alerts = append(next.Alerts, raised...)
	if over := len(next.Alerts) - MaxAlerts; over > 0 {
		next.Alerts = slices.Clone(next.Alerts[over:])
	}
	ts := snap.Timestamp
	next.LastUpdate = &ts
	return next, raised
}

func trendOf(change float64) models.Trend {
	switch {
	case change > 0:
		return models.TrendUp
	case change < 0:
		return models.TrendDown
	}
	return models.TrendStable
}

func alertType(change float64) models.AlertType {
	if change > 0 {
		return models.AlertSuccess
	}
	return models.AlertWarning
}

func direction(change float64, up, down string) string {
	if change > 0 {
		return up
	}
	return down
}

func formatNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
