package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestMigrations(t *testing.T) {
	s := openTestStore(t)

	v, err := SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	// Reapplying is a no-op.
	require.NoError(t, MigrateDB(s.db))

	require.NoError(t, RollbackMigration(s.db))
	_, err = s.db.Exec("SELECT task FROM sessions")
	assert.Error(t, err, "task column dropped by rollback")

	require.NoError(t, RollbackMigration(s.db))
	v, err = SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = s.db.Exec("SELECT COUNT(*) FROM exports")
	assert.Error(t, err, "exports table dropped by rollback")

	require.NoError(t, MigrateDB(s.db))
	_, err = s.db.Exec("SELECT COUNT(*) FROM exports")
	assert.NoError(t, err)
	_, err = s.db.Exec("SELECT task FROM sessions")
	assert.NoError(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateSession(ctx, "s1", "P01", t0, session.DefaultProtocol()))
	require.Error(t, s.CreateSession(ctx, "s1", "P01", t0, session.DefaultProtocol()), "duplicate id")

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "P01", got.Participant)
	assert.Equal(t, TaskNBack, got.Task)
	assert.Equal(t, StatusRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(t0))
	assert.True(t, got.EndedAt.IsZero())
	assert.Contains(t, got.Protocol, `"Rounds":3`)

	require.NoError(t, s.FinishSession(ctx, "s1", t0.Add(10*time.Minute), 3))
	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, 3, got.FinalN)
	assert.True(t, got.EndedAt.Equal(t0.Add(10*time.Minute)))

	missing, err := s.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.FinishSession(ctx, "nope", t0, 1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateTaskSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	params := map[string]int{"total": 20, "negative": 10}
	require.NoError(t, s.CreateTaskSession(ctx, "f1", "P01", TaskFlanker, t0, params))
	require.NoError(t, s.FinishSession(ctx, "f1", t0.Add(time.Minute), 0))

	got, err := s.GetSession(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, TaskFlanker, got.Task)
	assert.JSONEq(t, `{"total":20,"negative":10}`, got.Protocol)
	assert.Equal(t, StatusFinished, got.Status)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateSession(ctx, "a", "P01", t0, session.DefaultProtocol()))
	require.NoError(t, s.CreateSession(ctx, "b", "P02", t0.Add(time.Hour), session.DefaultProtocol()))
	require.NoError(t, s.CreateSession(ctx, "c", "P01", t0.Add(2*time.Hour), session.DefaultProtocol()))

	all, err := s.ListSessions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	p1, err := s.ListSessions(ctx, "P01", 1)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, "c", p1[0].ID)
}

func TestTrialsAndRounds(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateSession(ctx, "s1", "P01", t0, session.DefaultProtocol()))

	info := session.RoundInfo{SessionID: "s1", Round: 1, N: 2}
	want := []trial.Result{
		{Round: 1, TrialIndex: 0, VisualRT: trial.NoResponse, AudioRT: trial.NoResponse,
			VisualCorrect: true, AudioCorrect: true,
			VisualOutcome: trial.CorrectRejection, AudioOutcome: trial.CorrectRejection,
			VisualValence: trial.Neutral, AudioValence: trial.Neutral},
		{Round: 1, TrialIndex: 1, VisualIsTarget: true, VisualCorrect: true, VisualRT: 0.5,
			AudioRT: 0.75, VisualOutcome: trial.Hit, AudioOutcome: trial.FalseAlarm,
			VisualValence: trial.Negative, AudioValence: trial.Neutral},
	}
	// Insert out of order; reads come back sorted.
	require.NoError(t, s.InsertTrial(ctx, info, want[1]))
	require.NoError(t, s.InsertTrial(ctx, info, want[0]))
	assert.Error(t, s.InsertTrial(ctx, info, want[0]), "duplicate trial")

	got, err := s.TrialsForSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	err = s.InsertTrial(ctx, session.RoundInfo{SessionID: "ghost", Round: 1, N: 2}, want[0])
	assert.Error(t, err, "foreign key to sessions")

	rs := session.RoundSummary{
		Round: 1, N: 2, NextN: 3, Trials: 22,
		Visual:    trial.Stats{Hits: 7, Accuracy: 1},
		Audio:     trial.Stats{Hits: 6, Misses: 1, Accuracy: 6.0 / 7},
		StartedAt: t0, EndedAt: t0.Add(time.Minute),
	}
	require.NoError(t, s.InsertRound(ctx, "s1", rs))
	rounds, err := s.RoundsForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, 3, rounds[0].NextN)
	assert.InDelta(t, 6.0/7, rounds[0].AudioAccuracy, 1e-12)
	assert.Contains(t, rounds[0].Stats, `"hits":7`)
	assert.True(t, rounds[0].EndedAt.Equal(t0.Add(time.Minute)))
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateSession(ctx, "s1", "P01", t0, session.DefaultProtocol()))

	e := Export{Path: "/tmp/a.csv", SessionID: "s1", Kind: "nback", Digest: "aa", Size: 10, CreatedAt: t0}
	require.NoError(t, s.RecordExport(ctx, e))

	e.Digest, e.Size = "bb", 20
	require.NoError(t, s.RecordExport(ctx, e), "re-recording replaces")

	got, err := s.ExportByPath(ctx, "/tmp/a.csv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bb", got.Digest)
	assert.EqualValues(t, 20, got.Size)

	none, err := s.ExportByPath(ctx, "/tmp/none.csv")
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := s.ExportsForSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSink_RecordsSimulatedSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	proto := session.TestProtocol()
	require.NoError(t, s.CreateSession(ctx, "sim", "P09", t0, proto))

	c, err := session.New("sim", "P09", proto, session.WithSinks(s.Sink()))
	require.NoError(t, err)
	sum, err := session.Simulate(ctx, c, session.NewParticipant(1, 0, 3), t0)
	require.NoError(t, err)

	got, err := s.GetSession(ctx, "sim")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, sum.FinalN, got.FinalN)

	trials, err := s.TrialsForSession(ctx, "sim")
	require.NoError(t, err)
	assert.Len(t, trials, sum.Rounds[0].Trials)

	rounds, err := s.RoundsForSession(ctx, "sim")
	require.NoError(t, err)
	assert.Len(t, rounds, 1)
}
