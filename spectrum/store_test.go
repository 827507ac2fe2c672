package spectrum

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *ReportStore {
	t.Helper()
	s, err := OpenReportStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReportStore_SaveLatest(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Latest("team7", "m3")
	assert.ErrorIs(t, err, ErrReportNotFound)

	first := sampleReport()
	require.NoError(t, s.Save(first))

	second := sampleReport()
	second.RunID = "run-2"
	second.GeneratedAt = first.GeneratedAt.Add(time.Hour)
	second.Metrics.HistoricalUse.InVoxelError.CompetitorValue = 0.42
	require.NoError(t, s.Save(second))

	got, err := s.Latest("team7", "m3")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, 0.42, got.Summary().InVoxelHistorical)
	assert.True(t, second.GeneratedAt.Equal(got.GeneratedAt))
}

func TestReportStore_LatestWithinOneSecond(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := sampleReport()
	older.RunID = "run-older"
	older.GeneratedAt = base.Add(120 * time.Millisecond)
	newer := sampleReport()
	newer.RunID = "run-newer"
	newer.GeneratedAt = base.Add(123 * time.Millisecond)
	require.NoError(t, s.Save(newer))
	require.NoError(t, s.Save(older))

	got, err := s.Latest("team7", "m3")
	require.NoError(t, err)
	assert.Equal(t, "run-newer", got.RunID)

	all, err := s.List("team7")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-newer", all[0].RunID)
}

func TestReportStore_SaveReplacesSameRun(t *testing.T) {
	s := openTestStore(t)
	r := sampleReport()
	require.NoError(t, s.Save(r))

	r.Pass = true
	require.NoError(t, s.Save(r))

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Pass)
}

func TestReportStore_List(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, key := range [][2]string{{"team7", "m3"}, {"team9", "m3"}, {"team7", "m4"}} {
		r := sampleReport()
		r.Team, r.Match = key[0], key[1]
		r.GeneratedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Save(r))
	}

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m4", all[0].Match, "newest first")
	assert.Equal(t, "team9", all[1].Team)

	team7, err := s.List("team7")
	require.NoError(t, err)
	require.Len(t, team7, 2)
	for _, r := range team7 {
		assert.Equal(t, "team7", r.Team)
	}

	none, err := s.List("team0")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenReportStore_BadPath(t *testing.T) {
	_, err := OpenReportStore(filepath.Join(t.TempDir(), "missing", "dir", "reports.db"))
	assert.Error(t, err)
}
