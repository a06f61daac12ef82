package store

import (
	"maps"
	"sync"
	"time"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

// memoryState is the part of the store served without touching disk: the
// latest Snapshot and the current Summary. Only the Store writes to it.
type memoryState struct {
	mu      sync.RWMutex
	latest  *models.Snapshot
	summary models.Summary
}

func newMemoryState() *memoryState {
	return &memoryState{summary: models.NewSummary()}
}

func (m *memoryState) setLatest(s *models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = s
}

func (m *memoryState) getLatest() (*models.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.latest != nil
}

func (m *memoryState) setSummary(s models.Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = s
}

func (m *memoryState) getSummary() models.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSummary(m.summary)
}

func cloneSummary(s models.Summary) models.Summary {
	out := models.Summary{
		KeywordTrends: maps.Clone(s.KeywordTrends),
		Alerts:        append([]models.Alert(nil), s.Alerts...),
	}
	if out.KeywordTrends == nil {
		out.KeywordTrends = map[string]models.KeywordTrend{}
	}
	if out.Alerts == nil {
		out.Alerts = []models.Alert{}
	}
	if s.LastUpdate != nil {
		t := *s.LastUpdate
		out.LastUpdate = &t
	}
	if s.PerformanceTrends != nil {
		p := *s.PerformanceTrends
		out.PerformanceTrends = &p
	}
	return out
}

// day truncates t to midnight UTC.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
