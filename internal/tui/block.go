package tui

import "time"

type blockPhase int

const (
	blockGap blockPhase = iota
	blockShowing
	blockDone
)

// block steps through timed items: a gap, then the item until a response
// or the window closes.
type block[T, R any] struct {
	items  []T
	idx    int
	phase  blockPhase
	end    time.Time
	onset  time.Time
	gap    time.Duration
	window time.Duration

	// score is called with "" when the window closes without a response.
	score   func(item T, key string, rt time.Duration) R
	results []R
	started bool
}

func newBlock[T, R any](items []T, gap, window time.Duration, score func(T, string, time.Duration) R) *block[T, R] {
	return &block[T, R]{items: items, gap: gap, window: window, score: score}
}

// advance moves the block to now. It reports whether the block finished
// during this call.
func (b *block[T, R]) advance(now time.Time) bool {
	if b.phase == blockDone {
		return false
	}
	if !b.started {
		b.started = true
		b.enterGap(now)
	}
	for {
		if b.phase == blockDone {
			return true
		}
		if now.Before(b.end) {
			return false
		}
		switch b.phase {
		case blockGap:
			b.phase = blockShowing
			b.onset = b.end
			b.end = b.onset.Add(b.window)
		case blockShowing:
			b.record("", 0)
			if b.next(b.end) {
				return true
			}
		}
	}
}

// respond scores key for the shown item. It reports whether the key was
// taken and whether that finished the block.
func (b *block[T, R]) respond(key string, now time.Time) (taken, finished bool) {
	if b.phase != blockShowing || now.Before(b.onset) || !now.Before(b.end) {
		return false, false
	}
	b.record(key, now.Sub(b.onset))
	return true, b.next(now)
}

func (b *block[T, R]) record(key string, rt time.Duration) {
	b.results = append(b.results, b.score(b.items[b.idx], key, rt))
}

func (b *block[T, R]) next(at time.Time) bool {
	b.idx++
	if b.idx >= len(b.items) {
		b.phase = blockDone
		return true
	}
	b.enterGap(at)
	return false
}

func (b *block[T, R]) enterGap(at time.Time) {
	if len(b.items) == 0 {
		b.phase = blockDone
		return
	}
	b.phase = blockGap
	b.end = at.Add(b.gap)
}

func (b *block[T, R]) current() (T, bool) {
	var zero T
	if b.phase != blockShowing {
		return zero, false
	}
	return b.items[b.idx], true
}
