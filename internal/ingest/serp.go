package ingest

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	sourceSERP           = "serpapi"
	monthlySearches      = 1000
	backlinkBase         = 300
	backlinksPerResult   = 5
	competitorResultsMax = 10
)

type SERPOptions struct {
	Endpoint string
	APIKey   string
	Domains  []string
	Query    string
	Country  string
	Language string
	Interval time.Duration
}

// SERP estimates competitor visibility from site-restricted organic results.
type SERP struct {
	c    HTTPClient
	opts SERPOptions
	now  func() time.Time

	mu       sync.Mutex
	previous map[string]int // domain -> last estimated traffic
}

func NewSERP(c HTTPClient, opts SERPOptions) *SERP {
	return &SERP{c: c, opts: opts, now: time.Now, previous: map[string]int{}}
}

type serpResp struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Link     string `json:"link"`
	} `json:"organic_results"`
}

// FetchCompetitors calls the SERP API once per domain, sequentially and spaced
// by the configured interval. A failed domain yields a zeroed record.
func (s *SERP) FetchCompetitors(ctx context.Context) ([]models.CompetitorRecord, error) {
	if s.opts.APIKey == "" || len(s.opts.Domains) == 0 {
		return nil, ErrNotConfigured
	}
	lim := spacer(s.opts.Interval)
	out := make([]models.CompetitorRecord, 0, len(s.opts.Domains))
	for _, domain := range s.opts.Domains {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		var resp serpResp
		if err := getJSON(ctx, s.c, sourceSERP, s.url(domain), &resp); err != nil {
			out = append(out, models.CompetitorRecord{
				Domain:        domain,
				ChangePercent: "0.0",
				LastUpdate:    s.now().UTC(),
				Error:         "data unavailable",
			})
			continue
		}
		traffic := 0
		for i := range resp.OrganicResults {
			traffic += int(math.Floor(monthlySearches * positionCTR(i+1)))
		}
		top := len(resp.OrganicResults)
		out = append(out, models.CompetitorRecord{
			Domain:           domain,
			EstimatedTraffic: traffic,
			TopKeywords:      top,
			Backlinks:        backlinkBase + top*backlinksPerResult,
			ChangePercent:    s.change(domain, traffic),
			LastUpdate:       s.now().UTC(),
		})
	}
	return out, nil
}

func (s *SERP) url(domain string) string {
	q := url.Values{}
	q.Set("api_key", s.opts.APIKey)
	q.Set("engine", "google")
	q.Set("q", fmt.Sprintf("site:%s %s", domain, s.opts.Query))
	q.Set("gl", s.opts.Country)
	q.Set("hl", s.opts.Language)
	q.Set("num", strconv.Itoa(competitorResultsMax))
	return s.opts.Endpoint + "?" + q.Encode()
}

// change is the traffic delta against the previous observation of domain.
func (s *SERP) change(domain string, traffic int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.previous[domain]
	s.previous[domain] = traffic
	if !ok || prev == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(traffic-prev)/float64(prev)*100)
}

// positionCTR is the estimated click-through rate of an organic position.
func positionCTR(pos int) float64 {
	switch {
	case pos == 1:
		return 0.284
	case pos <= 3:
		return 0.15
	case pos <= 5:
		return 0.08
	case pos <= 10:
		return 0.04
	}
	return 0
}
