package ingest

import (
	"context"
	"math"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const sourcePageSpeed = "pagespeed"

// PageSpeed reads Lighthouse scores from PageSpeed Insights.
type PageSpeed struct {
	c        HTTPClient
	endpoint string
	apiKey   string
	siteURL  string
	now      func() time.Time
}

func NewPageSpeed(c HTTPClient, endpoint, apiKey, siteURL string) *PageSpeed {
	return &PageSpeed{c: c, endpoint: endpoint, apiKey: apiKey, siteURL: siteURL, now: time.Now}
}

type lighthouseResp struct {
	LighthouseResult struct {
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
		Audits map[string]struct {
			DisplayValue string   `json:"displayValue"`
			NumericValue *float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

func (l lighthouseResp) score(category string) int {
	c, ok := l.LighthouseResult.Categories[category]
	if !ok || c.Score == nil {
		return 0
	}
	return int(math.Round(*c.Score * 100))
}

func (l lighthouseResp) display(audit string) string {
	if a, ok := l.LighthouseResult.Audits[audit]; ok && a.DisplayValue != "" {
		return a.DisplayValue
	}
	return "N/A"
}

func (l lighthouseResp) numeric(audit string) float64 {
	if a, ok := l.LighthouseResult.Audits[audit]; ok && a.NumericValue != nil {
		return *a.NumericValue
	}
	return 0
}

// FetchPerformance runs the mobile and desktop analyses in parallel.
func (p *PageSpeed) FetchPerformance(ctx context.Context) (*models.PerformanceReport, error) {
	if p.apiKey == "" {
		return nil, ErrNotConfigured
	}
	var mobile, desktop models.PerformanceScore
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		mobile, err = p.analyze(gctx, models.DeviceMobile)
		return err
	})
	g.Go(func() (err error) {
		desktop, err = p.analyze(gctx, models.DeviceDesktop)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &models.PerformanceReport{Mobile: mobile, Desktop: desktop, Timestamp: p.now().UTC()}, nil
}

func (p *PageSpeed) analyze(ctx context.Context, device models.Device) (models.PerformanceScore, error) {
	var resp lighthouseResp
	if err := getJSON(ctx, p.c, sourcePageSpeed, p.url(device, "PERFORMANCE", "SEO", "ACCESSIBILITY"), &resp); err != nil {
		return models.PerformanceScore{}, err
	}
	return models.PerformanceScore{
		Device:        device,
		Performance:   resp.score("performance"),
		SEO:           resp.score("seo"),
		Accessibility: resp.score("accessibility"),
		CoreWebVitals: models.CoreWebVitals{
			FCP: resp.display("first-contentful-paint"),
			LCP: resp.display("largest-contentful-paint"),
			CLS: resp.display("cumulative-layout-shift"),
			TTI: resp.display("interactive"),
			TBT: resp.display("total-blocking-time"),
		},
	}, nil
}

// QuickCheck is the lightweight mobile, performance-only probe.
func (p *PageSpeed) QuickCheck(ctx context.Context) (*models.QuickPerformance, error) {
	if p.apiKey == "" {
		return nil, ErrNotConfigured
	}
	var resp lighthouseResp
	if err := getJSON(ctx, p.c, sourcePageSpeed, p.url(models.DeviceMobile, "PERFORMANCE"), &resp); err != nil {
		return nil, err
	}
	return &models.QuickPerformance{
		Performance: resp.score("performance"),
		FCP:         resp.numeric("first-contentful-paint"),
		LCP:         resp.numeric("largest-contentful-paint"),
		Timestamp:   p.now().UTC(),
	}, nil
}

func (p *PageSpeed) url(device models.Device, categories ...string) string {
	q := url.Values{}
	q.Set("url", p.siteURL)
	q.Set("key", p.apiKey)
	q.Set("strategy", string(device))
	for _, c := range categories {
		q.Add("category", c)
	}
	return p.endpoint + "?" + q.Encode()
}
