// Package watcher reports result files that change after their digest
// was recorded.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cogtask/internal/export"
)

// Lookup returns the recorded digest of path. ok is false for files that
// were never recorded, such as the CSV of a session still running.
type Lookup func(ctx context.Context, path string) (digest string, ok bool, err error)

// Event describes a recorded file that was checked after a change.
type Event struct {
	Path string
	// Want is the recorded digest, Got the current one. Got is empty when
	// the file was removed.
	Want string
	Got  string
	Size int64
	At   time.Time
}

// Modified reports whether the file no longer matches its record.
func (e Event) Modified() bool { return e.Got != e.Want }

// Removed reports whether the file is gone.
func (e Event) Removed() bool { return e.Got == "" }

// Watcher checks files in one directory once writes to them settle.
type Watcher struct {
	fs     *fsnotify.Watcher
	dir    string
	settle time.Duration
	lookup Lookup

	mu      sync.Mutex
	pending map[string]time.Time

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns a watcher over dir. A file is checked once it has not
// changed for settle.
func New(dir string, settle time.Duration, lookup Lookup) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fs:      fw,
		dir:     abs,
		settle:  settle,
		lookup:  lookup,
		pending: make(map[string]time.Time),
		events:  make(chan Event, 64),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}, nil
}

// Events returns checked files.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns digest and lookup failures.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start begins watching.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: w.dir, Err: errors.New("not a directory")}
	}
	if err := w.fs.Add(w.dir); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.settleLoop()
	return nil
}

// Stop shuts the watcher down and closes both channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fs.Close()
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) settleLoop() {
	defer w.wg.Done()

	tick := max(w.settle/2, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkSettled(now)
		}
	}
}

func (w *Watcher) checkSettled(now time.Time) {
	threshold := now.Add(-w.settle)

	w.mu.Lock()
	var ready []string
	seen := make(map[string]time.Time)
	for path, at := range w.pending {
		if at.Before(threshold) {
			ready = append(ready, path)
			seen[path] = at
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		ev, ok, err := w.check(path, now)

		w.mu.Lock()
		if w.pending[path].Equal(seen[path]) {
			delete(w.pending, path)
		} else {
			// Written again while checking.
			ok, err = false, nil
		}
		w.mu.Unlock()

		if err != nil {
			w.report(err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case w.events <- ev:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) check(path string, now time.Time) (Event, bool, error) {
	want, ok, err := w.lookup(context.Background(), path)
	if err != nil || !ok {
		return Event{}, false, err
	}

	ev := Event{Path: path, Want: want, At: now}
	got, size, err := export.DigestFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ev, true, nil
	case err != nil:
		return Event{}, false, err
	}
	ev.Got, ev.Size = got, size
	return ev, true, nil
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
