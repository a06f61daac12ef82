package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	sourceSearchConsole = "searchconsole"
	keywordWindowDays   = 7
)

// SearchConsole queries search analytics and sitemap status for one site.
type SearchConsole struct {
	c        HTTPClient
	endpoint string
	siteURL  string
	enabled  bool
	interval time.Duration
	now      func() time.Time
}

func NewSearchConsole(c HTTPClient, endpoint, siteURL string, enabled bool, interval time.Duration) *SearchConsole {
	return &SearchConsole{c: c, endpoint: endpoint, siteURL: siteURL, enabled: enabled, interval: interval, now: time.Now}
}

type searchAnalyticsReq struct {
	StartDate             string        `json:"startDate"`
	EndDate               string        `json:"endDate"`
	Dimensions            []string      `json:"dimensions"`
	DimensionFilterGroups []filterGroup `json:"dimensionFilterGroups"`
	RowLimit              int           `json:"rowLimit"`
}

type filterGroup struct {
	Filters []dimensionFilter `json:"filters"`
}

type dimensionFilter struct {
	Dimension  string `json:"dimension"`
	Operator   string `json:"operator"`
	Expression string `json:"expression"`
}

type searchAnalyticsResp struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// FetchKeywords runs one query per keyword. A failed keyword is recorded on
// its metric; the source fails only when every keyword failed.
func (s *SearchConsole) FetchKeywords(ctx context.Context, keywords []string) (map[string]models.KeywordMetric, error) {
	if !s.enabled {
		return nil, ErrNotConfigured
	}
	out := make(map[string]models.KeywordMetric, len(keywords))
	if len(keywords) == 0 {
		return out, nil
	}
	end := dayUTC(s.now())
	start := end.AddDate(0, 0, -keywordWindowDays)
	endpoint := s.siteEndpoint("searchAnalytics/query")
	lim := spacer(s.interval)

	var lastErr error
	failed := 0
	for _, kw := range keywords {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		body := searchAnalyticsReq{
			StartDate:  start.Format(time.DateOnly),
			EndDate:    end.Format(time.DateOnly),
			Dimensions: []string{"query"},
			DimensionFilterGroups: []filterGroup{{
				Filters: []dimensionFilter{{Dimension: "query", Operator: "contains", Expression: kw}},
			}},
			RowLimit: 1,
		}
		var resp searchAnalyticsResp
		m := models.KeywordMetric{Keyword: kw, CTR: formatPercent(0), CapturedAt: s.now().UTC()}
		if err := postJSON(ctx, s.c, sourceSearchConsole, endpoint, body, &resp); err != nil {
			m.Error = err.Error()
			lastErr = err
			failed++
			out[kw] = m
			continue
		}
		if len(resp.Rows) > 0 {
			row := resp.Rows[0]
			pos := row.Position
			m.Position = &pos
			m.Clicks = int(row.Clicks)
			m.Impressions = int(row.Impressions)
			m.CTR = formatPercent(row.CTR)
		}
		out[kw] = m
	}
	if failed == len(keywords) {
		return nil, fmt.Errorf("all keyword queries failed: %w", lastErr)
	}
	return out, nil
}

type sitemapsResp struct {
	Sitemap []struct {
		Path     string `json:"path"`
		Errors   int64  `json:"errors,string"`
		Warnings int64  `json:"warnings,string"`
		Contents []struct {
			Type      string `json:"type"`
			Submitted int64  `json:"submitted,string"`
			Indexed   int64  `json:"indexed,string"`
		} `json:"contents"`
	} `json:"sitemap"`
}

// FetchCrawl derives crawl health from the submitted sitemaps.
func (s *SearchConsole) FetchCrawl(ctx context.Context) (*models.CrawlStatus, error) {
	if !s.enabled {
		return nil, ErrNotConfigured
	}
	var resp sitemapsResp
	if err := getJSON(ctx, s.c, sourceSearchConsole, s.siteEndpoint("sitemaps"), &resp); err != nil {
		return nil, err
	}
	if resp.Sitemap == nil {
		return nil, errors.New("searchconsole: no sitemaps submitted")
	}
	st := &models.CrawlStatus{Timestamp: s.now().UTC()}
	for _, sm := range resp.Sitemap {
		st.CrawlErrors += int(sm.Errors)
		st.BlockedPages += int(sm.Warnings)
		for _, c := range sm.Contents {
			st.IndexedPages += int(c.Indexed)
		}
	}
	return st, nil
}

func (s *SearchConsole) siteEndpoint(path string) string {
	return s.endpoint + "/sites/" + url.PathEscape(s.siteURL) + "/" + path
}

// spacer lets the first call through at once and spaces the following ones.
func spacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func formatPercent(ratio float64) string { return fmt.Sprintf("%.1f", ratio*100) }

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
