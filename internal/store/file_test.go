package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/seo-monitor/internal/models"
)

var testDay = time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)

func openTest(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	s.now = func() time.Time { return testDay.Add(23 * time.Hour) }
	return s
}

func snapAt(ts time.Time) *models.Snapshot {
	return &models.Snapshot{Timestamp: ts, Keywords: map[string]models.KeywordMetric{}}
}

func TestLatestBeforeAnySave(t *testing.T) {
	s := openTest(t, t.TempDir())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSaveKeepsLast24(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()
	for i := 1; i <= 30; i++ {
		require.NoError(t, s.Save(ctx, snapAt(testDay.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.Historical(ctx, "24h")
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Equal(t, testDay.Add(7*time.Minute), got[0].Timestamp)
	assert.Equal(t, testDay.Add(30*time.Minute), got[23].Timestamp)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, testDay.Add(30*time.Minute), latest.Timestamp)
}

func TestSaveUsesSnapshotDate(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	require.NoError(t, s.Save(context.Background(), snapAt(testDay.AddDate(0, 0, -1).Add(22*time.Hour))))
	assert.FileExists(t, filepath.Join(dir, "seo-data-2025-08-09.json"))
	assert.FileExists(t, filepath.Join(dir, "summary.json"))
}

func TestHistoricalSortsAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	ctx := context.Background()

	// out of order across two days, with gaps
	require.NoError(t, s.Save(ctx, snapAt(testDay.Add(5*time.Hour))))
	require.NoError(t, s.Save(ctx, snapAt(testDay.AddDate(0, 0, -3).Add(9*time.Hour))))
	require.NoError(t, s.Save(ctx, snapAt(testDay.Add(1*time.Hour))))
	require.NoError(t, s.Save(ctx, snapAt(testDay.AddDate(0, 0, -20))))

	week, err := s.Historical(ctx, "7d")
	require.NoError(t, err)
	require.Len(t, week, 3)
	for i := 1; i < len(week); i++ {
		assert.False(t, week[i].Timestamp.Before(week[i-1].Timestamp))
	}

	month, err := s.Historical(ctx, "30d")
	require.NoError(t, err)
	assert.Len(t, month, 4)

	today, err := s.Historical(ctx, "24h")
	require.NoError(t, err)
	assert.Len(t, today, 2)
}

func TestHistoricalEmptyAndInvalid(t *testing.T) {
	s := openTest(t, t.TempDir())
	got, err := s.Historical(context.Background(), "7d")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = s.Historical(context.Background(), "1y")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestHistoricalSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seo-data-2025-08-09.json"), []byte("{nope"), 0o600))
	require.NoError(t, s.Save(context.Background(), snapAt(testDay.Add(time.Hour))))

	got, err := s.Historical(context.Background(), "7d")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCleanupRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	names := []string{
		"seo-data-2025-08-10.json", // today
		"seo-data-2025-05-12.json", // exactly 90 days
		"seo-data-2025-05-11.json", // 91 days
		"seo-data-2024-12-31.json",
		"seo-data-garbage.json",
		"summary.json",
		"keywords.json",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("[]"), 0o600))
	}

	removed, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, kept := range []string{"seo-data-2025-08-10.json", "seo-data-2025-05-12.json", "seo-data-garbage.json", "summary.json", "keywords.json"} {
		assert.FileExists(t, filepath.Join(dir, kept))
	}
	assert.NoFileExists(t, filepath.Join(dir, "seo-data-2025-05-11.json"))
	assert.NoFileExists(t, filepath.Join(dir, "seo-data-2024-12-31.json"))
}

func TestOpenRestoresLatestAndSummary(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	ctx := context.Background()
	pos := 3.0
	first := snapAt(testDay.AddDate(0, 0, -1).Add(time.Hour))
	second := snapAt(testDay.Add(2 * time.Hour))
	second.Keywords["app"] = models.KeywordMetric{Keyword: "app", Position: &pos, CTR: "2.0"}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	reopened := openTest(t, dir)
	latest, ok := reopened.Latest()
	require.True(t, ok)
	assert.Equal(t, second.Timestamp, latest.Timestamp)

	sum := reopened.Summary()
	require.NotNil(t, sum.LastUpdate)
	assert.Equal(t, second.Timestamp, *sum.LastUpdate)
	assert.Contains(t, sum.KeywordTrends, "app")
}

func TestOpenIgnoresCorruptSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte("not json"), 0o600))
	s := openTest(t, dir)
	sum := s.Summary()
	assert.Nil(t, sum.LastUpdate)
	assert.Empty(t, sum.Alerts)
}

func TestDayFileIsJSONArray(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	require.NoError(t, s.Save(context.Background(), snapAt(testDay.Add(time.Hour))))

	b, err := os.ReadFile(filepath.Join(dir, "seo-data-2025-08-10.json"))
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "2025-08-10T01:00:00Z", raw[0]["timestamp"])
	assert.Contains(t, raw[0], "performance")
}

func TestSaveHonorsCanceledContext(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, snapAt(testDay)), context.Canceled)
	_, ok := s.Latest()
	assert.False(t, ok)
}
