package session

import (
	"context"
	"math/rand"
	"time"

	"cogtask/internal/trial"
)

// Response is one participant key press.
type Response struct {
	Modality trial.Modality
	At       time.Time
}

// Driver advances a Controller in real time.
type Driver struct {
	Controller *Controller

	// Resolution is the tick period. Defaults to 10ms.
	Resolution time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run ticks the controller until the session is done or ctx is
// cancelled, forwarding responses as they arrive. A nil channel means no
// input.
func (d *Driver) Run(ctx context.Context, responses <-chan Response) error {
	res := d.Resolution
	if res <= 0 {
		res = 10 * time.Millisecond
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(res)
	defer ticker.Stop()

	c := d.Controller
	if err := c.Tick(ctx, now()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			c.Abort(ctx.Err())
			return ctx.Err()
		case r, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			c.Respond(r.Modality, r.At)
		case <-ticker.C:
			if err := c.Tick(ctx, now()); err != nil {
				return err
			}
			if c.State() == StateDone {
				return nil
			}
		}
	}
}

// Participant simulates responses.
type Participant struct {
	// HitRate is the probability of pressing on a target.
	HitRate float64
	// FalseAlarmRate is the probability of pressing on a non-target.
	FalseAlarmRate float64

	MeanRT   time.Duration
	RTJitter time.Duration

	rng *rand.Rand
}

// NewParticipant returns a simulated participant with its own seeded
// random stream.
func NewParticipant(hitRate, falseAlarmRate float64, seed int64) *Participant {
	return &Participant{
		HitRate:        hitRate,
		FalseAlarmRate: falseAlarmRate,
		MeanRT:         600 * time.Millisecond,
		RTJitter:       200 * time.Millisecond,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// respond decides whether and when to press for one modality.
func (p *Participant) respond(isTarget bool, window time.Duration) (time.Duration, bool) {
	prob := p.FalseAlarmRate
	if isTarget {
		prob = p.HitRate
	}
	if p.rng.Float64() >= prob {
		return 0, false
	}
	rt := p.MeanRT
	if p.RTJitter > 0 {
		rt += time.Duration(p.rng.Int63n(int64(2*p.RTJitter))) - p.RTJitter
	}
	rt = max(rt, time.Millisecond)
	if rt >= window {
		rt = window - time.Millisecond
	}
	return rt, true
}

// Simulate runs the whole session in virtual time starting at start,
// jumping from deadline to deadline.
func Simulate(ctx context.Context, c *Controller, p *Participant, start time.Time) (Summary, error) {
	now := start
	lastRound, lastTrial := -1, -1
	for {
		if err := ctx.Err(); err != nil {
			c.Abort(err)
			return c.Summary(), err
		}
		if err := c.Tick(ctx, now); err != nil {
			return c.Summary(), err
		}

		if cur, ok := c.Current(); ok && (cur.Round != lastRound || cur.Trial != lastTrial) {
			lastRound, lastTrial = cur.Round, cur.Trial
			if c.proto.Pool.Visual > 0 && c.proto.Mode.Presents(trial.Visual) {
				if rt, press := p.respond(cur.Slot.VisualIsTarget, cur.Window); press {
					c.Respond(trial.Visual, cur.Onset.Add(rt))
				}
			}
			if c.proto.Pool.Audio > 0 && c.proto.Mode.Presents(trial.Audio) {
				if rt, press := p.respond(cur.Slot.AudioIsTarget, cur.Window); press {
					c.Respond(trial.Audio, cur.Onset.Add(rt))
				}
			}
		}

		next, ok := c.NextDeadline()
		if !ok {
			return c.Summary(), c.Err()
		}
		if next.After(now) {
			now = next
		}
	}
}
