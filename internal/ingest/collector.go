package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/seo-monitor/internal/metrics"
	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	SourceKeywords    = "keywords"
	SourcePerformance = "performance"
	SourceTraffic     = "traffic"
	SourceCrawl       = "crawl"
	SourceCompetitors = "competitors"
)

type KeywordSource interface {
	FetchKeywords(ctx context.Context, keywords []string) (map[string]models.KeywordMetric, error)
}

type PerformanceSource interface {
	FetchPerformance(ctx context.Context) (*models.PerformanceReport, error)
	QuickCheck(ctx context.Context) (*models.QuickPerformance, error)
}

type TrafficSource interface {
	FetchTraffic(ctx context.Context) (*models.TrafficSummary, error)
}

type CrawlSource interface {
	FetchCrawl(ctx context.Context) (*models.CrawlStatus, error)
}

type CompetitorSource interface {
	FetchCompetitors(ctx context.Context) ([]models.CompetitorRecord, error)
}

// KeywordList supplies the keywords to track on each run.
type KeywordList interface {
	Tracked() []string
}

// Sources groups the upstream clients. A nil member is treated as not configured.
type Sources struct {
	Keywords    KeywordSource
	Performance PerformanceSource
	Traffic     TrafficSource
	Crawl       CrawlSource
	Competitors CompetitorSource
}

type Collector struct {
	src      Sources
	keywords KeywordList
	log      *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker[any]
	now      func() time.Time
}

func NewCollector(src Sources, keywords KeywordList, log *slog.Logger, bc BreakerConfig) *Collector {
	br := make(map[string]*gobreaker.CircuitBreaker[any])
	for _, name := range []string{SourceKeywords, SourcePerformance, SourceTraffic, SourceCrawl, SourceCompetitors} {
		br[name] = newBreaker(name, bc, log)
	}
	return &Collector{src: src, keywords: keywords, log: log, breakers: br, now: time.Now}
}

// RunCheck queries every source and assembles one Snapshot. Source failures
// are settled into the Snapshot; an error is returned only when the run
// itself breaks.
func (c *Collector) RunCheck(ctx context.Context) (snap *models.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, fmt.Errorf("collector panic: %v", r)
		}
	}()
	started := c.now().UTC()

	var (
		kw    models.Result[map[string]models.KeywordMetric]
		perf  models.Result[*models.PerformanceReport]
		tr    models.Result[*models.TrafficSummary]
		crawl models.Result[*models.CrawlStatus]
		comp  models.Result[[]models.CompetitorRecord]
	)
	var g errgroup.Group
	g.Go(guard(SourceKeywords, func() {
		kw = settle(ctx, c, SourceKeywords, func(ctx context.Context) (map[string]models.KeywordMetric, error) {
			if c.src.Keywords == nil {
				return nil, ErrNotConfigured
			}
			return c.src.Keywords.FetchKeywords(ctx, c.tracked())
		})
	}))
	g.Go(guard(SourcePerformance, func() {
		perf = settle(ctx, c, SourcePerformance, func(ctx context.Context) (*models.PerformanceReport, error) {
			if c.src.Performance == nil {
				return nil, ErrNotConfigured
			}
			return c.src.Performance.FetchPerformance(ctx)
		})
	}))
	g.Go(guard(SourceTraffic, func() {
		tr = settle(ctx, c, SourceTraffic, func(ctx context.Context) (*models.TrafficSummary, error) {
			if c.src.Traffic == nil {
				return nil, ErrNotConfigured
			}
			return c.src.Traffic.FetchTraffic(ctx)
		})
	}))
	g.Go(guard(SourceCrawl, func() {
		crawl = settle(ctx, c, SourceCrawl, func(ctx context.Context) (*models.CrawlStatus, error) {
			if c.src.Crawl == nil {
				return nil, ErrNotConfigured
			}
			return c.src.Crawl.FetchCrawl(ctx)
		})
	}))
	g.Go(guard(SourceCompetitors, func() {
		comp = settle(ctx, c, SourceCompetitors, func(ctx context.Context) ([]models.CompetitorRecord, error) {
			if c.src.Competitors == nil {
				return nil, ErrNotConfigured
			}
			return c.src.Competitors.FetchCompetitors(ctx)
		})
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap = &models.Snapshot{
		Timestamp: started,
		Sources: map[string]models.SourceState{
			SourceKeywords:    kw.State(),
			SourcePerformance: perf.State(),
			SourceTraffic:     tr.State(),
			SourceCrawl:       crawl.State(),
			SourceCompetitors: comp.State(),
		},
	}
	if kw.OK() {
		snap.Keywords = kw.Value
	}
	if perf.OK() {
		snap.Performance = perf.Value
	}
	if tr.OK() {
		snap.Traffic = tr.Value
	}
	if crawl.OK() {
		snap.Crawl = crawl.Value
	}
	if comp.OK() {
		snap.Competitors = comp.Value
	}
	c.log.Info("check complete", slog.Int("keywords", len(snap.Keywords)), slog.Duration("took", c.now().Sub(started)))
	return snap, nil
}

// QuickCheck runs the lightweight performance probe.
func (c *Collector) QuickCheck(ctx context.Context) (q *models.QuickPerformance, err error) {
	defer func() {
		if r := recover(); r != nil {
			q, err = nil, fmt.Errorf("panic in %s source: %v", SourcePerformance, r)
		}
	}()
	res := settle(ctx, c, SourcePerformance, func(ctx context.Context) (*models.QuickPerformance, error) {
		if c.src.Performance == nil {
			return nil, ErrNotConfigured
		}
		return c.src.Performance.QuickCheck(ctx)
	})
	switch res.Status {
	case models.StatusOK:
		return res.Value, nil
	case models.StatusUnconfigured:
		return nil, ErrNotConfigured
	}
	return nil, errors.New(res.Reason)
}

func (c *Collector) tracked() []string {
	if c.keywords == nil {
		return nil
	}
	return c.keywords.Tracked()
}

// settle runs fetch behind the source's breaker and classifies the outcome.
func settle[T any](ctx context.Context, c *Collector, source string, fetch func(context.Context) (T, error)) models.Result[T] {
	v, err := c.breakers[source].Execute(func() (any, error) { return fetch(ctx) })
	var res models.Result[T]
	switch {
	case err == nil:
		res = models.Ok(v.(T))
	case errors.Is(err, ErrNotConfigured):
		res = models.Unconfigured[T]("not configured")
		c.log.Debug("source not configured", slog.String("source", source))
	case breakerRejected(err):
		res = models.Failed[T]("circuit open")
		c.log.Warn("source skipped, breaker open", slog.String("source", source))
	default:
		res = models.Failed[T](err.Error())
		c.log.Warn("source failed", slog.String("source", source), slog.String("err", err.Error()))
	}
	metrics.SourceResults.WithLabelValues(source, string(res.Status)).Inc()
	return res
}

// guard turns a panic in a source goroutine into a run error.
func guard(source string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s source: %v", source, r)
			}
		}()
		fn()
		return nil
	}
}
