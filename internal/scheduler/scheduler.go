package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AngelCh415/seo-monitor/internal/ingest"
	"github.com/AngelCh415/seo-monitor/internal/metrics"
	"github.com/AngelCh415/seo-monitor/internal/models"
	"github.com/AngelCh415/seo-monitor/internal/realtime"
)

type Kind string

const (
	KindFull    Kind = "full"
	KindDeep    Kind = "deep"
	KindQuick   Kind = "quick"
	KindCleanup Kind = "cleanup"
)

type Collector interface {
	RunCheck(ctx context.Context) (*models.Snapshot, error)
	QuickCheck(ctx context.Context) (*models.QuickPerformance, error)
}

type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Cleanup(ctx context.Context) (int, error)
}

type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// Schedules are standard five-field cron specs. An empty spec disables the job.
type Schedules struct {
	Full         string
	Deep         string
	Quick        string
	Cleanup      string
	StartupDelay time.Duration
}

type errorEvent struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Scheduler turns cron ticks and manual triggers into runs executed one at a
// time. Requests arriving while a run is in flight are coalesced.
type Scheduler struct {
	collector Collector
	store     Store
	hub       Broadcaster
	sched     Schedules
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[Kind]bool
	wake    chan struct{}
}

// New validates the cron specs and returns a Scheduler ready to Serve.
func New(c Collector, st Store, hub Broadcaster, sched Schedules, logger *slog.Logger) (*Scheduler, error) {
	for name, spec := range map[string]string{"full": sched.Full, "deep": sched.Deep, "quick": sched.Quick, "cleanup": sched.Cleanup} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	return &Scheduler{
		collector: c,
		store:     st,
		hub:       hub,
		sched:     sched,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[Kind]bool),
		wake:      make(chan struct{}, 1),
	}, nil
}

// Trigger requests a run of kind. It never blocks and is safe from any goroutine.
func (s *Scheduler) Trigger(k Kind) {
	s.mu.Lock()
	s.pending[k] = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the most important pending run. A full or deep request absorbs
// the other one and any pending quick probe.
func (s *Scheduler) next() (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.pending[KindFull] || s.pending[KindDeep]:
		k := KindFull
		if !s.pending[KindFull] {
			k = KindDeep
		}
		delete(s.pending, KindFull)
		delete(s.pending, KindDeep)
		delete(s.pending, KindQuick)
		return k, true
	case s.pending[KindQuick]:
		delete(s.pending, KindQuick)
		return KindQuick, true
	case s.pending[KindCleanup]:
		delete(s.pending, KindCleanup)
		return KindCleanup, true
	}
	return "", false
}

// Serve registers the cron jobs and runs requests until ctx is done.
func (s *Scheduler) Serve(ctx context.Context) error {
	c := cron.New()
	for k, spec := range map[Kind]string{KindFull: s.sched.Full, KindDeep: s.sched.Deep, KindQuick: s.sched.Quick, KindCleanup: s.sched.Cleanup} {
		if spec == "" {
			continue
		}
		k := k // per-iteration copy; go directive is 1.21 (pre-loopvar semantics)
		if _, err := c.AddFunc(spec, func() { s.Trigger(k) }); err != nil {
			return fmt.Errorf("registering %s job: %w", k, err)
		}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	startup := time.AfterFunc(s.sched.StartupDelay, func() { s.Trigger(KindFull) })
	defer startup.Stop()

	s.logger.Info("scheduler started", "jobs", len(c.Entries()), "startup_delay", s.sched.StartupDelay)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.wake:
		}
		for ctx.Err() == nil {
			k, ok := s.next()
			if !ok {
				break
			}
			s.run(ctx, k)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, k Kind) {
	switch k {
	case KindFull, KindDeep:
		s.runFull(ctx, k)
	case KindQuick:
		s.runQuick(ctx)
	case KindCleanup:
		s.runCleanup(ctx)
	}
}

func (s *Scheduler) runFull(ctx context.Context, k Kind) {
	started := s.now()
	s.logger.Info("check started", "kind", k)
	snap, err := s.collector.RunCheck(ctx)
	metrics.RecordCheck(string(k), s.now().Sub(started), err)
	if err != nil {
		s.logger.Error("check failed", "kind", k, "error", err)
		s.hub.Broadcast(realtime.EventError, errorEvent{Message: "SEO check failed", Timestamp: s.now().UTC()})
		return
	}
	if err := s.store.Save(ctx, snap); err != nil {
		s.logger.Error("saving snapshot failed", "error", err)
	}
	s.hub.Broadcast(realtime.EventSEOUpdate, snap)
	s.logger.Info("check finished", "kind", k, "took", s.now().Sub(started))
}

func (s *Scheduler) runQuick(ctx context.Context) {
	started := s.now()
	q, err := s.collector.QuickCheck(ctx)
	if errors.Is(err, ingest.ErrNotConfigured) {
		s.logger.Debug("quick check skipped, performance source not configured")
		return
	}
	metrics.RecordCheck(string(KindQuick), s.now().Sub(started), err)
	if err != nil {
		s.logger.Warn("quick check failed", "error", err)
		return
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = s.now().UTC()
	}
	s.hub.Broadcast(realtime.EventPerformanceUpdate, q)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	n, err := s.store.Cleanup(ctx)
	if err != nil {
		s.logger.Error("cleanup failed", "removed", n, "error", err)
		return
	}
	s.logger.Info("cleanup finished", "removed", n)
}
