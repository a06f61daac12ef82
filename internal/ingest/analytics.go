package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	sourceAnalytics = "analytics"
	organicChannel  = "Organic Search"
	topPagesLimit   = 3
)

// Analytics reads organic traffic from the GA4 Data API.
type Analytics struct {
	c          HTTPClient
	endpoint   string
	propertyID string
	now        func() time.Time
}

func NewAnalytics(c HTTPClient, endpoint, propertyID string) *Analytics {
	return &Analytics{c: c, endpoint: endpoint, propertyID: propertyID, now: time.Now}
}

type gaName struct {
	Name string `json:"name"`
}

type gaReportReq struct {
	DateRanges      []gaDateRange `json:"dateRanges"`
	Dimensions      []gaName      `json:"dimensions,omitempty"`
	Metrics         []gaName      `json:"metrics"`
	DimensionFilter gaFilterExpr  `json:"dimensionFilter"`
	OrderBys        []gaOrderBy   `json:"orderBys,omitempty"`
	Limit           int           `json:"limit,omitempty"`
}

type gaDateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type gaFilterExpr struct {
	Filter struct {
		FieldName    string `json:"fieldName"`
		StringFilter struct {
			MatchType string `json:"matchType"`
			Value     string `json:"value"`
		} `json:"stringFilter"`
	} `json:"filter"`
}

type gaOrderBy struct {
	Metric struct {
		MetricName string `json:"metricName"`
	} `json:"metric"`
	Desc bool `json:"desc"`
}

type gaReportResp struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

func (a *Analytics) baseReq() gaReportReq {
	r := gaReportReq{DateRanges: []gaDateRange{{StartDate: "30daysAgo", EndDate: "today"}}}
	r.DimensionFilter.Filter.FieldName = "sessionDefaultChannelGroup"
	r.DimensionFilter.Filter.StringFilter.MatchType = "EXACT"
	r.DimensionFilter.Filter.StringFilter.Value = organicChannel
	return r
}

// FetchTraffic runs a totals report and a top-pages report.
func (a *Analytics) FetchTraffic(ctx context.Context) (*models.TrafficSummary, error) {
	if a.propertyID == "" {
		return nil, ErrNotConfigured
	}
	url := fmt.Sprintf("%s/properties/%s:runReport", a.endpoint, a.propertyID)

	totalsReq := a.baseReq()
	totalsReq.Metrics = []gaName{{"sessions"}, {"totalUsers"}, {"bounceRate"}, {"averageSessionDuration"}}
	var totals gaReportResp
	if err := postJSON(ctx, a.c, sourceAnalytics, url, totalsReq, &totals); err != nil {
		return nil, err
	}

	pagesReq := a.baseReq()
	pagesReq.Dimensions = []gaName{{"pagePath"}}
	pagesReq.Metrics = []gaName{{"sessions"}}
	var ob gaOrderBy
	ob.Metric.MetricName = "sessions"
	ob.Desc = true
	pagesReq.OrderBys = []gaOrderBy{ob}
	pagesReq.Limit = topPagesLimit
	var pages gaReportResp
	if err := postJSON(ctx, a.c, sourceAnalytics, url, pagesReq, &pages); err != nil {
		return nil, err
	}

	out := &models.TrafficSummary{
		BounceRate:         formatPercent(0),
		AvgSessionDuration: formatDuration(0),
		TopPages:           []models.PageSessions{},
		Timestamp:          a.now().UTC(),
	}
	if len(totals.Rows) > 0 {
		mv := totals.Rows[0].MetricValues
		if len(mv) < 4 {
			return nil, fmt.Errorf("%s: expected 4 metric values, got %d", sourceAnalytics, len(mv))
		}
		out.OrganicSessions = int(parseNum(mv[0].Value))
		out.OrganicUsers = int(parseNum(mv[1].Value))
		out.BounceRate = formatPercent(parseNum(mv[2].Value))
		out.AvgSessionDuration = formatDuration(parseNum(mv[3].Value))
	}
	for _, row := range pages.Rows {
		if len(out.TopPages) == topPagesLimit {
			break
		}
		if len(row.DimensionValues) == 0 || len(row.MetricValues) == 0 {
			continue
		}
		out.TopPages = append(out.TopPages, models.PageSessions{
			Path:     row.DimensionValues[0].Value,
			Sessions: int(parseNum(row.MetricValues[0].Value)),
		})
	}
	return out, nil
}

func parseNum(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds float64) string {
	total := int(math.Round(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
