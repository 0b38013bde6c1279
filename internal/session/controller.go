package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cogtask/internal/sequence"
	"cogtask/internal/trial"
)

// ErrNotRunning is returned by Controller.Tick after the session ended
// without an error of its own.
var ErrNotRunning = errors.New("session: not running")

// Option configures a Controller.
type Option func(*Controller)

// WithSource sets the random source used for sequences, intervals and
// asset choice.
func WithSource(src sequence.Source) Option {
	return func(c *Controller) { c.src = src }
}

// WithPresenter sets the presenter.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) { c.presenter = p }
}

// WithSinks appends result sinks.
func WithSinks(sinks ...Sink) Option {
	return func(c *Controller) { c.sinks = append(c.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithCatalog sets the stimulus catalog.
func WithCatalog(cat Catalog) Option {
	return func(c *Controller) { c.catalog = cat }
}

// WithGenerationObserver reports every sequence generation to o.
func WithGenerationObserver(o GenerationObserver) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLimits overrides the sequence search bounds.
func WithLimits(l sequence.Limits) Option {
	return func(c *Controller) { c.limits = l }
}

// effect is presenter or sink work deferred until the lock is released.
type effect func(ctx context.Context) error

// Controller runs one participant session.
//
// Tick must be called from a single goroutine. Respond and the accessors
// may be called from any goroutine.
type Controller struct {
	proto       Protocol
	id          string
	participant string

	src       sequence.Source
	presenter Presenter
	sinks     []Sink
	log       *slog.Logger
	catalog   Catalog
	limits    sequence.Limits
	observer  GenerationObserver
	picker    *picker

	mu       sync.Mutex
	state    State
	n        int
	round    int // completed rounds
	phaseEnd time.Time

	seq        sequence.Sequence
	trialIdx   int
	window     *trial.Window
	current    Presentation
	results    []trial.Result
	roundStart time.Time

	summary Summary
	err     error
}

// New validates proto and returns a controller in StateSetup.
func New(id, participant string, proto Protocol, opts ...Option) (*Controller, error) {
	if err := proto.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol: %w", err)
	}

	c := &Controller{
		proto:       proto,
		id:          id,
		participant: participant,
		presenter:   NopPresenter{},
		log:         slog.Default(),
		catalog:     DefaultCatalog(),
		n:           proto.StartN,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.catalog.Check(proto); err != nil {
		return nil, fmt.Errorf("stimulus catalog: %w", err)
	}
	if c.src == nil {
		c.src = sequence.NewSource(time.Now().UnixNano())
	}
	c.log = c.log.With(slog.String("session_id", id))
	c.picker = newPicker(c.catalog, proto, c.src)
	c.summary = Summary{SessionID: id, Participant: participant, Mode: proto.Mode}
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Protocol returns the session plan.
func (c *Controller) Protocol() Protocol { return c.proto }

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// N returns the n of the current or next round.
func (c *Controller) N() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Err returns the error that aborted the session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Summary returns a copy of the rounds completed so far.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

func (c *Controller) summaryLocked() Summary {
	s := c.summary
	s.Rounds = append([]RoundSummary(nil), c.summary.Rounds...)
	return s
}

// Current returns the trial being presented.
func (c *Controller) Current() (Presentation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return Presentation{}, false
	}
	return c.current, true
}

// NextDeadline returns when the next transition is due. It reports false
// once the session is done.
func (c *Controller) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSetup:
		return time.Time{}, true
	case StateRunning:
		return c.window.Deadline(), true
	case StateDone:
		return time.Time{}, false
	default:
		return c.phaseEnd, true
	}
}

// Respond forwards a participant response to the open trial. It reports
// whether the response was recorded.
func (c *Controller) Respond(m trial.Modality, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.window == nil {
		return false
	}
	return c.window.Respond(m, at)
}

// Tick advances the state machine to now. Transitions are stamped with
// their scheduled time, so a late tick replays them in order.
func (c *Controller) Tick(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	if c.state == StateDone {
		err := c.err
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrNotRunning
	}

	var fx []effect
	for {
		progressed, err := c.step(now, &fx)
		if err != nil {
			c.abortLocked(err)
			break
		}
		if !progressed {
			break
		}
	}
	c.mu.Unlock()

	for _, f := range fx {
		if err := f(ctx); err != nil {
			c.mu.Lock()
			c.abortLocked(err)
			c.mu.Unlock()
			return err
		}
	}
	return c.Err()
}

// Abort stops the session with err.
func (c *Controller) Abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked(err)
}

func (c *Controller) abortLocked(err error) {
	if c.err != nil {
		return
	}
	c.state = StateDone
	c.err = err
	c.window = nil
	c.log.Error("session aborted", "round", c.round+1, "error", err)
}

func (c *Controller) step(now time.Time, fx *[]effect) (bool, error) {
	switch c.state {
	case StateSetup:
		c.summary.StartedAt = now
		c.log.Info("session started", "participant", c.participant, "mode", c.proto.Mode.String(), "rounds", c.proto.Rounds, "n", c.n)
		c.enterWaiting(now, fx)
		return true, nil

	case StateWaiting:
		if now.Before(c.phaseEnd) {
			return false, nil
		}
		return true, c.startRound(c.phaseEnd, fx)

	case StateRunning:
		if !c.window.Expired(now) {
			return false, nil
		}
		c.closeTrial(fx)
		return true, nil

	case StateResting:
		if now.Before(c.phaseEnd) {
			return false, nil
		}
		c.enterWaiting(c.phaseEnd, fx)
		return true, nil

	case StateSummary:
		c.finish(c.phaseEnd, fx)
		return true, nil
	}
	return false, nil
}

func (c *Controller) enterWaiting(at time.Time, fx *[]effect) {
	c.state = StateWaiting
	c.phaseEnd = at.Add(c.proto.WaitTime)
	round, n, startsAt := c.round+1, c.n, c.phaseEnd
	c.log.Debug("waiting for round", "round", round, "n", n, "starts_at", startsAt)
	*fx = append(*fx, func(context.Context) error {
		c.presenter.RoundStarting(round, n, startsAt)
		return nil
	})
}

func (c *Controller) startRound(at time.Time, fx *[]effect) error {
	cfg := c.proto.RoundConfig(c.n)
	began := time.Now()
	seq, err := c.proto.generate(c.n, c.src, c.limits)
	if c.observer != nil {
		c.observer.Generated(c.n, time.Since(began), err)
	}
	if err != nil {
		c.log.Error("sequence generation failed", "round", c.round+1, "config", cfg.String(),
			"kind", sequence.KindOf(err).String(), "error", err)
		return fmt.Errorf("round %d: %w", c.round+1, err)
	}

	c.seq = seq
	c.results = c.results[:0]
	c.trialIdx = 0
	c.roundStart = at
	c.picker.startRound()
	c.log.Info("round started", "round", c.round+1, "n", c.n, "trials", len(seq))
	c.present(at, fx)
	return nil
}

func (c *Controller) present(at time.Time, fx *[]effect) {
	slot := c.seq[c.trialIdx]
	interval := c.proto.Intervals[c.src.IntRange(0, len(c.proto.Intervals))]
	visual, audio := c.picker.next(c.seq, c.trialIdx, c.n, c.src)

	c.window = trial.Open(slot, at, interval)
	c.current = Presentation{
		Round:       c.round + 1,
		N:           c.n,
		Trial:       c.trialIdx,
		Total:       len(c.seq),
		Slot:        slot,
		VisualCell:  slot.VisualStimulusID,
		VisualAsset: visual,
		AudioAsset:  audio,
		Onset:       at,
		Window:      interval,
	}
	c.state = StateRunning

	p := c.current
	*fx = append(*fx, func(context.Context) error {
		c.presenter.Present(p)
		return nil
	})
}

func (c *Controller) info() RoundInfo {
	return RoundInfo{SessionID: c.id, Round: c.round + 1, N: c.n}
}

func (c *Controller) closeTrial(fx *[]effect) {
	deadline := c.window.Deadline()
	r := c.window.Close(c.current.VisualAsset.Valence, c.current.AudioAsset.Valence)
	r.Round = c.round + 1
	c.results = append(c.results, r)

	info := c.info()
	*fx = append(*fx, func(ctx context.Context) error {
		c.presenter.Clear()
		for _, s := range c.sinks {
			if err := s.TrialCompleted(ctx, info, r); err != nil {
				return fmt.Errorf("record trial %d: %w", r.TrialIndex, err)
			}
		}
		return nil
	})

	c.trialIdx++
	if c.trialIdx < len(c.seq) {
		c.present(deadline, fx)
		return
	}
	c.endRound(deadline, fx)
}

func (c *Controller) endRound(at time.Time, fx *[]effect) {
	visual, audio := trial.Summarize(c.results)
	visualNeg, _ := trial.ValenceCounts(c.results, trial.Visual)
	audioNeg, _ := trial.ValenceCounts(c.results, trial.Audio)
	next := c.proto.NextN(c.n, visual.Accuracy(), audio.Accuracy())

	rs := RoundSummary{
		Round:          c.round + 1,
		N:              c.n,
		NextN:          next,
		Trials:         len(c.results),
		Visual:         visual.Stats(),
		Audio:          audio.Stats(),
		VisualNegative: visualNeg,
		AudioNegative:  audioNeg,
		StartedAt:      c.roundStart,
		EndedAt:        at,
	}
	c.summary.Rounds = append(c.summary.Rounds, rs)
	c.log.Info("round completed", "round", rs.Round, "n", rs.N,
		"visual_accuracy", rs.Visual.Accuracy, "audio_accuracy", rs.Audio.Accuracy, "next_n", next)

	info := c.info()
	*fx = append(*fx, func(ctx context.Context) error {
		for _, s := range c.sinks {
			if err := s.RoundCompleted(ctx, info, rs); err != nil {
				return fmt.Errorf("record round %d: %w", rs.Round, err)
			}
		}
		return nil
	})

	c.n = next
	c.round++
	c.window = nil

	if c.round < c.proto.Rounds {
		c.state = StateResting
		c.phaseEnd = at.Add(c.proto.RestTime)
		until := c.phaseEnd
		*fx = append(*fx, func(context.Context) error {
			c.presenter.Resting(until)
			return nil
		})
		return
	}
	c.state = StateSummary
	c.phaseEnd = at
}

func (c *Controller) finish(at time.Time, fx *[]effect) {
	c.summary.EndedAt = at
	c.summary.FinalN = c.n
	c.state = StateDone
	s := c.summaryLocked()
	c.log.Info("session completed", "rounds", len(s.Rounds), "final_n", s.FinalN)

	*fx = append(*fx, func(ctx context.Context) error {
		for _, sink := range c.sinks {
			if err := sink.SessionCompleted(ctx, s); err != nil {
				return fmt.Errorf("finish session: %w", err)
			}
		}
		c.presenter.Finished(s)
		return nil
	})
}
