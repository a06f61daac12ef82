package models

import "time"

type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// KeywordMetric is the Search Console view of one tracked keyword.
// A nil Position means the keyword was not ranked in the observed window.
type KeywordMetric struct {
	Keyword     string    `json:"keyword"`
	Position    *float64  `json:"position"`
	Clicks      int       `json:"clicks"`
	Impressions int       `json:"impressions"`
	CTR         string    `json:"ctr"`
	CapturedAt  time.Time `json:"capturedAt"`
	Error       string    `json:"error,omitempty"`
}

type CoreWebVitals struct {
	FCP string `json:"FCP"`
	LCP string `json:"LCP"`
	CLS string `json:"CLS"`
	TTI string `json:"TTI"`
	TBT string `json:"TBT"`
}

type PerformanceScore struct {
	Device        Device        `json:"device"`
	Performance   int           `json:"performance"`
	SEO           int           `json:"seo"`
	Accessibility int           `json:"accessibility"`
	CoreWebVitals CoreWebVitals `json:"coreWebVitals"`
}

type PerformanceReport struct {
	Mobile    PerformanceScore `json:"mobile"`
	Desktop   PerformanceScore `json:"desktop"`
	Timestamp time.Time        `json:"timestamp"`
}

// QuickPerformance is the payload of the lightweight mobile probe.
// FCP and LCP are in milliseconds.
type QuickPerformance struct {
	Performance int       `json:"performance"`
	FCP         float64   `json:"FCP"`
	LCP         float64   `json:"LCP"`
	Timestamp   time.Time `json:"timestamp"`
}

type PageSessions struct {
	Path     string `json:"path"`
	Sessions int    `json:"sessions"`
}

type TrafficSummary struct {
	OrganicSessions    int            `json:"organicSessions"`
	OrganicUsers       int            `json:"organicUsers"`
	BounceRate         string         `json:"bounceRate"`
	AvgSessionDuration string         `json:"avgSessionDuration"`
	TopPages           []PageSessions `json:"topPages"`
	Timestamp          time.Time      `json:"timestamp"`
}

type CrawlStatus struct {
	CrawlErrors  int       `json:"crawlErrors"`
	IndexedPages int       `json:"indexedPages"`
	BlockedPages int       `json:"blockedPages"`
	Timestamp    time.Time `json:"timestamp"`
}

type CompetitorRecord struct {
	Domain           string    `json:"domain"`
	EstimatedTraffic int       `json:"estimatedTraffic"`
	TopKeywords      int       `json:"topKeywords"`
	Backlinks        int       `json:"backlinks"`
	ChangePercent    string    `json:"changePercent"`
	LastUpdate       time.Time `json:"lastUpdate"`
	Error            string    `json:"error,omitempty"`
}

// Snapshot is one full or partial capture of every monitored metric.
// A source that failed or is not configured leaves its field nil; Sources
// records why.
type Snapshot struct {
	Timestamp   time.Time                `json:"timestamp"`
	Keywords    map[string]KeywordMetric `json:"keywords"`
	Performance *PerformanceReport       `json:"performance"`
	Traffic     *TrafficSummary          `json:"traffic"`
	Crawl       *CrawlStatus             `json:"crawl"`
	Competitors []CompetitorRecord       `json:"competitors"`
	Sources     map[string]SourceState   `json:"sources,omitempty"`
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// KeywordTrend is the latest metric of a keyword plus its movement since the
// previous observation. Change and Trend are unset on a first observation.
type KeywordTrend struct {
	KeywordMetric
	Change *float64 `json:"change,omitempty"`
	Trend  Trend    `json:"trend,omitempty"`
}

type AlertType string

const (
	AlertSuccess AlertType = "success"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
	AlertInfo    AlertType = "info"
)

type Alert struct {
	Type      AlertType `json:"type"`
	Category  string    `json:"category"`
	Keyword   string    `json:"keyword,omitempty"`
	Change    float64   `json:"change"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Summary struct {
	LastUpdate        *time.Time              `json:"lastUpdate"`
	KeywordTrends     map[string]KeywordTrend `json:"keywordTrends"`
	PerformanceTrends *PerformanceScore       `json:"performanceTrends"`
	Alerts            []Alert                 `json:"alerts"`
}

func NewSummary() Summary {
	return Summary{
		KeywordTrends: map[string]KeywordTrend{},
		Alerts:        []Alert{},
	}
}

// NoData is served in place of a Snapshot before the first successful check.
type NoData struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
