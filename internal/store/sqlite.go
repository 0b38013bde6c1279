// Package store keeps session, round and trial records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

// Store is a SQLite result database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a running n-back session. The protocol is stored
// as JSON.
func (s *Store) CreateSession(ctx context.Context, id, participant string, started time.Time, proto session.Protocol) error {
	return s.CreateTaskSession(ctx, id, participant, TaskNBack, started, proto)
}

// CreateTaskSession inserts a running session of task with params stored
// as JSON.
func (s *Store) CreateTaskSession(ctx context.Context, id, participant, task string, started time.Time, params any) error {
	enc, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode protocol: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, participant, task, started_at, protocol, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, participant, task, started.UnixNano(), string(enc), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession marks a session finished with its final n.
func (s *Store) FinishSession(ctx context.Context, id string, ended time.Time, finalN int) error {
	return s.closeSession(ctx, id, ended, finalN, StatusFinished)
}

// AbortSession marks a session aborted.
func (s *Store) AbortSession(ctx context.Context, id string, ended time.Time, n int) error {
	return s.closeSession(ctx, id, ended, n, StatusAborted)
}

func (s *Store) closeSession(ctx context.Context, id string, ended time.Time, n int, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, final_n = ?, status = ? WHERE id = ?",
		ended.UnixNano(), n, status, id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("update session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// InsertRound stores a finished round.
func (s *Store) InsertRound(ctx context.Context, sessionID string, r session.RoundSummary) error {
	stats, err := json.Marshal(struct {
		Visual trial.Stats `json:"visual"`
		Audio  trial.Stats `json:"audio"`
	}{r.Visual, r.Audio})
	if err != nil {
		return fmt.Errorf("encode round stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rounds (session_id, round, n, next_n, trials, visual_accuracy,
			audio_accuracy, stats, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Round, r.N, r.NextN, r.Trials, r.Visual.Accuracy, r.Audio.Accuracy,
		string(stats), r.StartedAt.UnixNano(), r.EndedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// InsertTrial stores one classified trial.
func (s *Store) InsertTrial(ctx context.Context, info session.RoundInfo, r trial.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trials (session_id, round, trial_index, n, visual_target, audio_target,
			visual_correct, audio_correct, visual_rt, audio_rt, visual_outcome, audio_outcome,
			visual_valence, audio_valence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.SessionID, r.Round, r.TrialIndex, info.N, r.VisualIsTarget, r.AudioIsTarget,
		r.VisualCorrect, r.AudioCorrect, r.VisualRT, r.AudioRT,
		r.VisualOutcome.String(), r.AudioOutcome.String(),
		string(r.VisualValence), string(r.AudioValence),
	)
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

const sessionColumns = "id, participant, task, started_at, ended_at, final_n, protocol, status"

// GetSession returns the session with id, or nil when none exists.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions newest first. An empty participant lists
// everyone; limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, participant string, limit int) ([]Session, error) {
	q := "SELECT " + sessionColumns + " FROM sessions"
	var args []any
	if participant != "" {
		q += " WHERE participant = ?"
		args = append(args, participant)
	}
	q += " ORDER BY started_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		finalN  sql.NullInt64
		proto   sql.NullString
	)
	if err := sc.Scan(&sess.ID, &sess.Participant, &sess.Task, &started, &ended, &finalN, &proto, &sess.Status); err != nil {
		return nil, err
	}
	sess.StartedAt = time.Unix(0, started)
	if ended.Valid {
		sess.EndedAt = time.Unix(0, ended.Int64)
	}
	sess.FinalN = int(finalN.Int64)
	sess.Protocol = proto.String
	return &sess, nil
}

// RoundsForSession returns the rounds of a session in order.
func (s *Store) RoundsForSession(ctx context.Context, sessionID string) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, round, n, next_n, trials, visual_accuracy, audio_accuracy,
			stats, started_at, ended_at
		FROM rounds WHERE session_id = ? ORDER BY round`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var (
			r              Round
			started, ended int64
		)
		if err := rows.Scan(&r.SessionID, &r.Round, &r.N, &r.NextN, &r.Trials,
			&r.VisualAccuracy, &r.AudioAccuracy, &r.Stats, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.EndedAt = time.Unix(0, ended)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrialsForSession returns every trial of a session ordered by round and
// index.
func (s *Store) TrialsForSession(ctx context.Context, sessionID string) ([]trial.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, trial_index, visual_target, audio_target, visual_correct, audio_correct,
			visual_rt, audio_rt, visual_outcome, audio_outcome, visual_valence, audio_valence
		FROM trials WHERE session_id = ? ORDER BY round, trial_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []trial.Result
	for rows.Next() {
		var (
			r                  trial.Result
			vOutcome, aOutcome string
			vValence, aValence string
		)
		if err := rows.Scan(&r.Round, &r.TrialIndex, &r.VisualIsTarget, &r.AudioIsTarget,
			&r.VisualCorrect, &r.AudioCorrect, &r.VisualRT, &r.AudioRT,
			&vOutcome, &aOutcome, &vValence, &aValence); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if r.VisualOutcome, err = trial.ParseOutcome(vOutcome); err != nil {
			return nil, err
		}
		if r.AudioOutcome, err = trial.ParseOutcome(aOutcome); err != nil {
			return nil, err
		}
		r.VisualValence = trial.Valence(vValence)
		r.AudioValence = trial.Valence(aValence)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordExport stores or replaces the digest of an export file.
func (s *Store) RecordExport(ctx context.Context, e Export) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (path, session_id, kind, digest, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			session_id = excluded.session_id, kind = excluded.kind,
			digest = excluded.digest, size = excluded.size, created_at = excluded.created_at`,
		e.Path, e.SessionID, e.Kind, e.Digest, e.Size, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

// ExportByPath returns the export recorded for path, or nil.
func (s *Store) ExportByPath(ctx context.Context, path string) (*Export, error) {
	var (
		e       Export
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT path, session_id, kind, digest, size, created_at
		FROM exports WHERE path = ?`, path,
	).Scan(&e.Path, &e.SessionID, &e.Kind, &e.Digest, &e.Size, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	e.CreatedAt = time.Unix(0, created)
	return &e, nil
}

// ExportsForSession returns the exports of a session.
func (s *Store) ExportsForSession(ctx context.Context, sessionID string) ([]Export, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, session_id, kind, digest, size, created_at
		FROM exports WHERE session_id = ? ORDER BY path`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var (
			e       Export
			created int64
		)
		if err := rows.Scan(&e.Path, &e.SessionID, &e.Kind, &e.Digest, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
