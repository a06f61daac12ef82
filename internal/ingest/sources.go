package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/AngelCh415/seo-monitor/internal/config"
)

const (
	searchConsoleScope = "https://www.googleapis.com/auth/webmasters.readonly"
	analyticsScope     = "https://www.googleapis.com/auth/analytics.readonly"
)

// NewSources builds every upstream client from cfg. A source whose
// credentials are missing or unusable is left nil and reported as not
// configured by the Collector.
func NewSources(ctx context.Context, cfg *config.Config, log *slog.Logger) Sources {
	var src Sources

	if cfg.SearchConsoleEnabled() {
		hc, err := searchConsoleClient(ctx, cfg)
		if err != nil {
			log.Error("search console credentials unusable", slog.String("err", err.Error()))
		} else {
			sc := NewSearchConsole(hc, cfg.GSCEndpoint, cfg.SiteURL, true, cfg.KeywordRequestInterval)
			src.Keywords = sc
			src.Crawl = sc
		}
	}

	if cfg.PageSpeedEnabled() {
		src.Performance = NewPageSpeed(NewHTTPClient(cfg.PageSpeedTimeout), cfg.PageSpeedEndpoint, cfg.PageSpeedAPIKey, cfg.SiteURL)
	}

	if cfg.AnalyticsEnabled() {
		hc, err := analyticsClient(ctx, cfg)
		if err != nil {
			log.Error("analytics credentials unusable", slog.String("err", err.Error()))
		} else {
			src.Traffic = NewAnalytics(hc, cfg.AnalyticsEndpoint, cfg.AnalyticsPropertyID)
		}
	}

	if cfg.SERPEnabled() {
		src.Competitors = NewSERP(NewHTTPClient(cfg.HTTPTimeout), SERPOptions{
			Endpoint: cfg.SERPEndpoint,
			APIKey:   cfg.SERPAPIKey,
			Domains:  cfg.CompetitorDomains,
			Query:    cfg.CompetitorQuery,
			Country:  cfg.SERPCountry,
			Language: cfg.SERPLanguage,
			Interval: cfg.SERPRequestInterval,
		})
	}

	log.Info("sources configured",
		slog.Bool("keywords", src.Keywords != nil),
		slog.Bool("performance", src.Performance != nil),
		slog.Bool("traffic", src.Traffic != nil),
		slog.Bool("crawl", src.Crawl != nil),
		slog.Bool("competitors", src.Competitors != nil),
	)
	return src
}

func searchConsoleClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	refresh := cfg.GSCRefreshToken
	if refresh == "" {
		var err error
		if refresh, err = refreshTokenFromFile(cfg.GSCTokenFile); err != nil {
			return nil, err
		}
	}
	conf := &oauth2.Config{
		ClientID:     cfg.GSCClientID,
		ClientSecret: cfg.GSCClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{searchConsoleScope},
	}
	return timeoutClient(conf.Client(baseContext(ctx, cfg.HTTPTimeout), &oauth2.Token{RefreshToken: refresh}), cfg.HTTPTimeout), nil
}

// refreshTokenFromFile reads a stored OAuth token. Only the refresh token is
// kept so a stale access token is never reused.
func refreshTokenFromFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	var tok struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(b, &tok); err != nil {
		return "", fmt.Errorf("parsing token file: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", errors.New("token file has no refresh_token")
	}
	return tok.RefreshToken, nil
}

func analyticsClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	b, err := cfg.ServiceAccountJSON()
	if err != nil {
		return nil, err
	}
	jwt, err := google.JWTConfigFromJSON(b, analyticsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account: %w", err)
	}
	return timeoutClient(jwt.Client(baseContext(ctx, cfg.HTTPTimeout)), cfg.HTTPTimeout), nil
}

// baseContext carries the HTTP client oauth2 uses for token exchanges.
func baseContext(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
}

func timeoutClient(hc *http.Client, timeout time.Duration) *http.Client {
	hc.Timeout = timeout
	return hc
}
