package metrics

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

const noDataMessage = "No data available yet"

// Reader is the read side of the snapshot store.
type Reader interface {
	Latest() (*models.Snapshot, bool)
	Summary() models.Summary
	Historical(ctx context.Context, period string) ([]models.Snapshot, error)
}

type Service struct {
	st  Reader
	now func() time.Time
}

func NewService(st Reader) *Service { return &Service{st: st, now: time.Now} }
func norm(s string) string          { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// Latest returns the latest Snapshot, or a NoData placeholder before the
// first check completes.
func (s *Service) Latest() any {
	if snap, ok := s.st.Latest(); ok {
		return snap
	}
	return models.NoData{Message: noDataMessage, Timestamp: s.now().UTC()}
}

func (s *Service) Keywords() map[string]models.KeywordMetric {
	snap, ok := s.st.Latest()
	if !ok || snap.Keywords == nil {
		return map[string]models.KeywordMetric{}
	}
	return snap.Keywords
}

func (s *Service) Performance() (*models.PerformanceReport, bool) {
	snap, ok := s.st.Latest()
	if !ok || snap.Performance == nil {
		return nil, false
	}
	return snap.Performance, true
}

// SourceStates reports how each source settled in the latest Snapshot, or
// nil before the first check.
func (s *Service) SourceStates() map[string]models.SourceState {
	snap, ok := s.st.Latest()
	if !ok {
		return nil
	}
	return snap.Sources
}

func (s *Service) History(ctx context.Context, period string) ([]models.Snapshot, error) {
	return s.st.Historical(ctx, period)
}

func (s *Service) Summary() models.Summary { return s.st.Summary() }

// KeywordRanking lists the latest keyword metrics, best position first and
// unranked keywords last. Supports keyword (comma list), limit and offset.
func (s *Service) KeywordRanking(v url.Values) []models.KeywordMetric {
	only := csvSet(v.Get("keyword"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	rows := make([]models.KeywordMetric, 0)
	for _, m := range s.Keywords() {
		if len(only) > 0 {
			if _, ok := only[norm(m.Keyword)]; !ok {
				continue
			}
		}
		rows = append(rows, m)
	}

	// orden determinista
	sort.Slice(rows, func(i, j int) bool {
		pi, pj := rows[i].Position, rows[j].Position
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi < *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return rows[i].Keyword < rows[j].Keyword
	})

	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset)
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	if offset > n {
		offset = n
	}
	return limit, offset
}
