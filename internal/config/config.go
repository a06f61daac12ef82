package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Host      string `env:"DASHBOARD_HOST"`
	Port      int    `env:"DASHBOARD_PORT" envDefault:"5001"`
	DataDir   string `env:"DATA_DIR" envDefault:"./data"`
	StaticDir string `env:"STATIC_DIR"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	SiteURL        string   `env:"SITE_URL" envDefault:"https://www.example.com/"`
	TargetKeywords []string `env:"TARGET_KEYWORDS" envSeparator:","`

	// Search Console (OAuth2 refresh token, inline or from a token file)
	GSCClientID     string `env:"GOOGLE_SEARCH_CONSOLE_CLIENT_ID"`
	GSCClientSecret string `env:"GOOGLE_SEARCH_CONSOLE_CLIENT_SECRET"`
	GSCRefreshToken string `env:"GOOGLE_SEARCH_CONSOLE_REFRESH_TOKEN"`
	GSCTokenFile    string `env:"GOOGLE_SEARCH_CONSOLE_TOKEN_FILE"`
	GSCEndpoint     string `env:"SEARCH_CONSOLE_ENDPOINT" envDefault:"https://www.googleapis.com/webmasters/v3"`

	PageSpeedAPIKey   string        `env:"GOOGLE_PAGESPEED_API_KEY"`
	PageSpeedEndpoint string        `env:"PAGESPEED_ENDPOINT" envDefault:"https://www.googleapis.com/pagespeedonline/v5/runPagespeed"`
	PageSpeedTimeout  time.Duration `env:"PAGESPEED_TIMEOUT" envDefault:"30s"`

	// Analytics Data API (service account JSON, inline or a path)
	AnalyticsPropertyID  string `env:"GOOGLE_ANALYTICS_PROPERTY_ID"`
	AnalyticsCredentials string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	AnalyticsEndpoint    string `env:"ANALYTICS_ENDPOINT" envDefault:"https://analyticsdata.googleapis.com/v1beta"`

	SERPAPIKey          string        `env:"SERPAPI_KEY"`
	SERPEndpoint        string        `env:"SERPAPI_ENDPOINT" envDefault:"https://serpapi.com/search.json"`
	CompetitorDomains   []string      `env:"COMPETITOR_DOMAINS" envSeparator:","`
	CompetitorQuery     string        `env:"COMPETITOR_QUERY" envDefault:"mobile app development"`
	SERPCountry         string        `env:"SERP_COUNTRY" envDefault:"it"`
	SERPLanguage        string        `env:"SERP_LANGUAGE" envDefault:"it"`
	SERPRequestInterval time.Duration `env:"SERP_REQUEST_INTERVAL" envDefault:"1s"`

	KeywordRequestInterval time.Duration `env:"KEYWORD_REQUEST_INTERVAL" envDefault:"200ms"`
	HTTPTimeout            time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	FullCheckSchedule  string        `env:"FULL_CHECK_SCHEDULE" envDefault:"0 * * * *"`
	DeepCheckSchedule  string        `env:"DEEP_CHECK_SCHEDULE" envDefault:"0 */6 * * *"`
	QuickCheckSchedule string        `env:"QUICK_CHECK_SCHEDULE" envDefault:"*/15 * * * *"`
	CleanupSchedule    string        `env:"CLEANUP_SCHEDULE" envDefault:"30 3 * * *"`
	StartupDelay       time.Duration `env:"STARTUP_DELAY" envDefault:"2s"`
	RetentionDays      int           `env:"RETENTION_DAYS" envDefault:"90"`

	BreakerFailures uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"10m"`

	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.TargetKeywords = compact(cfg.TargetKeywords)
	cfg.CompetitorDomains = compact(cfg.CompetitorDomains)
	cfg.CORSOrigins = compact(cfg.CORSOrigins)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DASHBOARD_PORT out of range: %d", cfg.Port)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) SearchConsoleEnabled() bool {
	return c.GSCClientID != "" && c.GSCClientSecret != "" && (c.GSCRefreshToken != "" || c.GSCTokenFile != "")
}

func (c Config) PageSpeedEnabled() bool { return c.PageSpeedAPIKey != "" }

func (c Config) AnalyticsEnabled() bool {
	return c.AnalyticsPropertyID != "" && c.AnalyticsCredentials != ""
}

func (c Config) SERPEnabled() bool { return c.SERPAPIKey != "" && len(c.CompetitorDomains) > 0 }

// Sources reports which upstreams have credentials. Values are never exposed.
func (c Config) Sources() map[string]bool {
	return map[string]bool{
		"keywords":    c.SearchConsoleEnabled(),
		"crawl":       c.SearchConsoleEnabled(),
		"performance": c.PageSpeedEnabled(),
		"traffic":     c.AnalyticsEnabled(),
		"competitors": c.SERPEnabled(),
	}
}

// ServiceAccountJSON returns the Analytics credentials, reading them from disk
// when the variable holds a path instead of inline JSON.
func (c Config) ServiceAccountJSON() ([]byte, error) {
	v := strings.TrimSpace(c.AnalyticsCredentials)
	if strings.HasPrefix(v, "{") {
		return []byte(v), nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("reading service account file: %w", err)
	}
	return b, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
