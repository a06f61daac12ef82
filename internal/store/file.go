package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/AngelCh415/seo-monitor/internal/metrics"
	"github.com/AngelCh415/seo-monitor/internal/models"
)

const (
	MaxDayEntries        = 24
	MaxAlerts            = 10
	DefaultRetentionDays = 90

	dayFilePrefix = "seo-data-"
	dayFileSuffix = ".json"
	dayLayout     = "2006-01-02"
	summaryFile   = "summary.json"
	keywordsFile  = "keywords.json"
)

var ErrInvalidPeriod = errors.New("invalid period: use 24h, 7d or 30d")

var periodDays = map[string]int{"24h": 1, "7d": 7, "30d": 30}

type Options struct {
	RetentionDays int
	Keywords      []string
	Logger        *slog.Logger
}

// Store persists Snapshots as one JSON array per UTC day and keeps the
// derived Summary in summary.json.
type Store struct {
	dir       string
	retention int
	log       *slog.Logger
	now       func() time.Time

	// writeMu serializes every read-modify-write of the data directory.
	writeMu  sync.Mutex
	mem      *memoryState
	keywords *Keywords
}

func Open(dir string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	kw, err := loadKeywords(filepath.Join(dir, keywordsFile), opts.Keywords)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:       dir,
		retention: opts.RetentionDays,
		log:       opts.Logger,
		now:       time.Now,
		mem:       newMemoryState(),
		keywords:  kw,
	}
	s.restore()
	return s, nil
}

// restore reloads summary.json and the newest persisted Snapshot. Unreadable
// files are logged and ignored.
func (s *Store) restore() {
	var sum models.Summary
	switch err := readJSON(filepath.Join(s.dir, summaryFile), &sum); {
	case err == nil:
		s.mem.setSummary(cloneSummary(sum))
	case !errors.Is(err, os.ErrNotExist):
		s.log.Warn("summary unreadable, starting empty", slog.String("err", err.Error()))
	}

	dates, err := s.dayFiles()
	if err != nil || len(dates) == 0 {
		return
	}
	newest := dates[len(dates)-1]
	entries, err := s.readDay(newest)
	if err != nil {
		s.log.Warn("latest day-file unreadable", slog.String("date", newest.Format(dayLayout)), slog.String("err", err.Error()))
		return
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		s.mem.setLatest(&last)
		s.log.Info("restored latest snapshot", slog.Time("timestamp", last.Timestamp))
	}
}

func (s *Store) Keywords() *Keywords { return s.keywords }

// Latest returns the most recently saved Snapshot.
func (s *Store) Latest() (*models.Snapshot, bool) { return s.mem.getLatest() }

func (s *Store) Summary() models.Summary { return s.mem.getSummary() }

// Save appends snap to its day-file, keeping the newest MaxDayEntries, and
// updates the Summary. The in-memory latest slot is updated even when the
// write fails.
func (s *Store) Save(ctx context.Context, snap *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mem.setLatest(snap)

	date := day(snap.Timestamp)
	entries, err := s.readDay(date)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("day-file unreadable, starting a new one", slog.String("date", date.Format(dayLayout)), slog.String("err", err.Error()))
		entries = nil
	}
	entries = append(entries, *snap)
	if over := len(entries) - MaxDayEntries; over > 0 {
		entries = entries[over:]
	}
	if err := writeFileAtomic(s.dayPath(date), entries); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("writing day-file: %w", err)
	}
	s.log.Debug("snapshot saved", slog.String("date", date.Format(dayLayout)), slog.Int("entries", len(entries)))
	return s.updateSummaryLocked(snap)
}

// UpdateSummary folds snap into the Summary and persists it.
func (s *Store) UpdateSummary(snap *models.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.updateSummaryLocked(snap)
}

func (s *Store) updateSummaryLocked(snap *models.Snapshot) error {
	next, raised := nextSummary(s.mem.getSummary(), snap)
	s.mem.setSummary(next)
	for _, a := range raised {
		metrics.AlertsRaised.WithLabelValues(a.Category, string(a.Type)).Inc()
		s.log.Info("alert raised", slog.String("category", a.Category), slog.String("type", string(a.Type)), slog.String("message", a.Message))
	}
	if err := writeFileAtomic(filepath.Join(s.dir, summaryFile), next); err != nil {
		metrics.StoreErrors.WithLabelValues("summary").Inc()
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Historical returns every Snapshot of the last 1, 7 or 30 UTC days, oldest
// first. Days without a file are skipped.
func (s *Store) Historical(ctx context.Context, period string) ([]models.Snapshot, error) {
	days, ok := periodDays[period]
	if !ok {
		return nil, ErrInvalidPeriod
	}
	today := day(s.now())
	out := []models.Snapshot{}
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := today.AddDate(0, 0, -i)
		entries, err := s.readDay(date)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			metrics.StoreErrors.WithLabelValues("history").Inc()
			s.log.Warn("skipping unreadable day-file", slog.String("date", date.Format(dayLayout)), slog.String("err", err.Error()))
			continue
		}
		out = append(out, entries...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Cleanup deletes day-files dated before today minus the retention window
// and reports how many were removed.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dates, err := s.dayFiles()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("cleanup").Inc()
		return 0, err
	}
	cutoff := day(s.now()).AddDate(0, 0, -s.retention)
	removed := 0
	var errs []error
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !d.Before(cutoff) {
			continue
		}
		if err := os.Remove(s.dayPath(d)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		s.log.Info("old day-file removed", slog.String("date", d.Format(dayLayout)))
	}
	if len(errs) > 0 {
		metrics.StoreErrors.WithLabelValues("cleanup").Inc()
	}
	return removed, errors.Join(errs...)
}

// dayFiles lists the dates of all day-files, oldest first.
func (s *Store) dayFiles() ([]time.Time, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing data dir: %w", err)
	}
	var out []time.Time
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if d, ok := parseDayFile(e.Name()); ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func parseDayFile(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, dayFilePrefix) || !strings.HasSuffix(name, dayFileSuffix) {
		return time.Time{}, false
	}
	d, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, dayFilePrefix), dayFileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func (s *Store) dayPath(d time.Time) string {
	return filepath.Join(s.dir, dayFilePrefix+d.Format(dayLayout)+dayFileSuffix)
}

func (s *Store) readDay(d time.Time) ([]models.Snapshot, error) {
	var entries []models.Snapshot
	if err := readJSON(s.dayPath(d), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFileAtomic replaces path with the JSON encoding of v through a temp
// file in the same directory.
func writeFileAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
