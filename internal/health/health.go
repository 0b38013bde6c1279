// Package health reports whether the pieces a session depends on are
// usable: the result database, the export directory and the running
// session itself.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Result is the outcome of one check.
type Result struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
}

// Check tests one component.
type Check func(ctx context.Context) Result

// Component is a registered check. A failing critical component makes
// the process unhealthy, any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a check without its own timeout.
const DefaultTimeout = 2 * time.Second

// Checker runs registered checks and keeps their last results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]Result
	started    time.Time
	ready      bool
}

// NewChecker returns a checker with no components that is not ready.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]Result),
		started:    time.Now(),
	}
}

// Register adds or replaces a component.
func (c *Checker) Register(comp Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[comp.Name] = &comp
	c.results[comp.Name] = Result{Status: StatusUnknown}
}

// SetReady marks the process ready, typically once a session is open.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// Ready reports the readiness flag.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Run executes every check concurrently and returns the fresh results.
func (c *Checker) Run(ctx context.Context) map[string]Result {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	out := make(map[string]Result, len(comps))
	var mu sync.Mutex
	var g errgroup.Group
	for _, comp := range comps {
		g.Go(func() error {
			r := run(ctx, comp)
			mu.Lock()
			out[comp.Name] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	c.mu.Lock()
	for name, r := range out {
		if _, ok := c.components[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return out
}

func run(ctx context.Context, comp *Component) (r Result) {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Result{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(p)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	select {
	case r = <-done:
	case <-ctx.Done():
		r = Result{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	r.LastChecked = start
	r.Duration = time.Since(start)
	return r
}

// Overall aggregates the last results.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var unknown, degraded bool
	for name, r := range c.results {
		comp := c.components[name]
		switch r.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			degraded = true
		case StatusDegraded:
			degraded = true
		case StatusUnknown:
			unknown = unknown || comp.Critical
		}
	}
	switch {
	case unknown:
		return StatusUnknown
	case degraded:
		return StatusDegraded
	}
	return StatusHealthy
}

// Report is the body served by Handler.
type Report struct {
	Status     Status            `json:"status"`
	Ready      bool              `json:"ready"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components"`
	Checked    []string          `json:"checked"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Report runs every check and aggregates the results.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Run(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	c.mu.RLock()
	ready, uptime := c.ready, time.Since(c.started)
	c.mu.RUnlock()

	return Report{
		Status:     c.Overall(),
		Ready:      ready,
		Uptime:     uptime.Round(time.Second).String(),
		Components: results,
		Checked:    names,
		Timestamp:  time.Now(),
	}
}

// Handler serves the full report. Unhealthy and unknown statuses answer
// 503, degraded still answers 200.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := c.Report(r.Context())
		code := http.StatusOK
		if rep.Status == StatusUnhealthy || rep.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rep)
	})
}

// ReadyHandler answers 200 once SetReady(true) was called and no critical
// component failed on the last run.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
			return
		}
		status := c.Overall()
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "ready": true})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// PingCheck reports a database reachable through ping.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return Result{Status: StatusUnhealthy, Message: "database unreachable", Error: err.Error()}
		}
		return Result{Status: StatusHealthy, Message: "database ok"}
	}
}

// DirWritableCheck reports whether a file can be created in dir.
func DirWritableCheck(dir string) Check {
	return func(context.Context) Result {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return Result{Status: StatusUnhealthy, Message: "directory not writable", Error: err.Error(),
				Details: map[string]any{"dir": dir}}
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return Result{Status: StatusHealthy, Message: "directory writable", Details: map[string]any{"dir": dir}}
	}
}

// StateCheck reports a running session through state, which returns the
// controller state name and the error that aborted it, if any.
func StateCheck(state func() (string, error)) Check {
	return func(context.Context) Result {
		name, err := state()
		if err != nil {
			return Result{Status: StatusDegraded, Message: "session aborted", Error: err.Error(),
				Details: map[string]any{"state": name}}
		}
		return Result{Status: StatusHealthy, Message: "session " + name, Details: map[string]any{"state": name}}
	}
}
