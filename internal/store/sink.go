package store

import (
	"context"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

// Sink records a running session. The session row must exist before the
// first trial arrives; see CreateSession.
type Sink struct {
	store *Store
}

// Sink returns a session.Sink writing into s.
func (s *Store) Sink() *Sink {
	return &Sink{store: s}
}

func (k *Sink) TrialCompleted(ctx context.Context, info session.RoundInfo, r trial.Result) error {
	return k.store.InsertTrial(ctx, info, r)
}

func (k *Sink) RoundCompleted(ctx context.Context, info session.RoundInfo, r session.RoundSummary) error {
	return k.store.InsertRound(ctx, info.SessionID, r)
}

func (k *Sink) SessionCompleted(ctx context.Context, s session.Summary) error {
	return k.store.FinishSession(ctx, s.SessionID, s.EndedAt, s.FinalN)
}

var _ session.Sink = (*Sink)(nil)
