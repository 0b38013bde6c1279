package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"cogtask/internal/config"
	"cogtask/internal/export"
	"cogtask/internal/flanker"
	"cogtask/internal/health"
	"cogtask/internal/logging"
	"cogtask/internal/metrics"
	"cogtask/internal/proximity"
	"cogtask/internal/sequence"
	"cogtask/internal/session"
	"cogtask/internal/store"
	"cogtask/internal/stroop"
	"cogtask/internal/tui"
)

// player builds the task screens of one play invocation and remembers
// the n-back runs it has to finalise. Each task reads the configuration
// current when it starts, so edits to the file apply to the next task.
type player struct {
	ctx       context.Context
	loader    *config.Loader
	overrides func(*config.Config)
	log       *logging.Logger
	st        *store.Store
	rec     *metrics.Recorder
	checker *health.Checker

	runs []*nbackRun
}

func cmdPlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	participant := fs.String("participant", "", "participant id (default from config)")
	single := fs.Bool("test", false, "run a single n-back round")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Parse(args)

	overrides := func(c *config.Config) {
		if *participant != "" {
			c.Participant = *participant
		}
		if *single {
			c.NBack.Rounds = 1
		}
	}
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	cfg = withOverrides(cfg, overrides)
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	// The terminal belongs to the task screens.
	log := setupLogging(cfg, "file")
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &player{ctx: ctx, loader: loader, overrides: overrides, log: log, st: openStore(cfg)}
	if p.st != nil {
		defer p.st.Close()
	}
	loader.OnChange(func(c *config.Config) {
		log.Info("config reloaded", "path", path, "nback_rounds", c.NBack.Rounds, "flanker_trials", c.Flanker.Trials)
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config reload disabled", "path", path, "error", err)
	} else {
		defer loader.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-loader.Errors():
					if !ok {
						return
					}
					log.Warn("config reload failed, keeping previous", "error", err)
				}
			}
		}()
	}
	p.checker = newChecker(cfg, p.st)
	p.checker.SetReady(true)
	if cfg.Metrics.Addr != "" {
		p.rec = metrics.NewRecorder(true)
		serveMetrics(ctx, cfg.Metrics.Addr, p.rec, p.checker, log)
	}

	menu := tui.NewMenu([]tui.Task{
		{Name: "Dual N-Back", Start: p.startNBack(session.ModeDual)},
		{Name: "Colour N-Back", Start: p.startNBack(session.ModeVisual)},
		{Name: "Audio N-Back", Start: p.startNBack(session.ModeAudio)},
		{Name: "Emotional Flanker", Start: p.startFlanker},
		{Name: "Counting Stroop", Start: p.startStroop},
	}, proximity.NewRegistry[string, int]())

	_, runErr := tui.Run(menu)

	final := context.WithoutCancel(ctx)
	for _, r := range p.runs {
		if err := r.finish(final); err != nil {
			log.Error("finalise session", "session_id", r.id, "error", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		fatalf("%v", runErr)
	}
	for _, r := range p.runs {
		fmt.Printf("Results: %s\n", r.csv.Path())
	}
}

func withOverrides(c *config.Config, fn func(*config.Config)) *config.Config {
	cp := *c
	fn(&cp)
	return &cp
}

// config is the latest loaded configuration with the flag overrides.
func (p *player) config() *config.Config {
	return withOverrides(p.loader.Config(), p.overrides)
}

func (p *player) startNBack(mode session.Mode) func() (tea.Model, error) {
	return func() (tea.Model, error) {
		cfg := p.config()
		proto := cfg.NBack.Protocol().ForMode(mode)
		run, err := newNBackRun(p.ctx, cfg, p.log, p.st, p.rec, proto, time.Now())
		if err != nil {
			return nil, err
		}
		screen := &tui.Screen{}
		ctrl, err := run.controller(session.WithPresenter(screen))
		if err != nil {
			run.finish(p.ctx)
			return nil, err
		}
		p.runs = append(p.runs, run)
		p.checker.Register(health.Component{Name: "session", Check: sessionCheck(ctrl)})
		return tui.NewNBack(p.ctx, ctrl, screen), nil
	}
}

func (p *player) startFlanker() (tea.Model, error) {
	cfg := p.config()
	words, err := cfg.Flanker.Words()
	if err != nil {
		return nil, fmt.Errorf("load words: %w", err)
	}
	task := cfg.Flanker.Task()
	trials, err := flanker.Build(words, task, sequence.NewSource(time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}

	b, err := p.startBlock(cfg, store.TaskFlanker, task, flanker.Header, flanker.FileName)
	if err != nil {
		return nil, err
	}
	return tui.NewFlanker(trials, task, func(results []flanker.Result) error {
		return b.finish(func(path string) error { return flanker.WriteResults(path, results) })
	}), nil
}

func (p *player) startStroop() (tea.Model, error) {
	cfg := p.config()
	task := cfg.Stroop.Task()
	items, err := stroop.Build(task, sequence.NewSource(time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}

	b, err := p.startBlock(cfg, store.TaskStroop, task, stroop.Header, stroop.FileName)
	if err != nil {
		return nil, err
	}
	return tui.NewStroop(items, task, func(results []stroop.Result) error {
		return b.finish(func(path string) error { return stroop.WriteResults(path, results) })
	}), nil
}

// block is a flanker or stroop run writing a single result file.
type block struct {
	p    *player
	id   string
	kind string
	path string
}

func (p *player) startBlock(cfg *config.Config, kind string, params any, header []string,
	fileName func(time.Time, string) string) (*block, error) {
	started := time.Now()
	participant := export.SanitizeParticipant(cfg.Participant)
	dir, err := exportDir(cfg)
	if err != nil {
		return nil, err
	}

	// Claim the file now so a block started in the same second gets its own.
	t, err := export.CreateUnique(filepath.Join(dir, fileName(started, participant)), header)
	if err != nil {
		return nil, err
	}
	if err := t.Close(); err != nil {
		return nil, err
	}

	b := &block{p: p, id: uuid.NewString(), kind: kind, path: t.Path()}
	if p.st != nil {
		if err := p.st.CreateTaskSession(p.ctx, b.id, cfg.Participant, kind, started, params); err != nil {
			return nil, err
		}
	}
	p.log.WithSession(b.id).Info("block started", "task", kind)
	return b, nil
}

func (b *block) finish(write func(path string) error) error {
	ctx := context.WithoutCancel(b.p.ctx)
	if err := write(b.path); err != nil {
		if b.p.st != nil {
			b.p.st.AbortSession(ctx, b.id, time.Now(), 0)
		}
		return err
	}
	if b.p.st != nil {
		if err := b.p.st.FinishSession(ctx, b.id, time.Now(), 0); err != nil {
			return err
		}
	}
	b.p.log.WithSession(b.id).Info("block finished", "task", b.kind, "path", b.path)
	return recordExports(ctx, b.p.st, b.id, map[string]string{b.path: b.kind}, b.p.log)
}
