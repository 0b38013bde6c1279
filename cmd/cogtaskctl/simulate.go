package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"cogtask/internal/health"
	"cogtask/internal/metrics"
	"cogtask/internal/sequence"
	"cogtask/internal/session"
)

func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	participant := fs.String("participant", "", "participant id (default from config)")
	hit := fs.Float64("hit", 0.8, "probability of responding to a target")
	fa := fs.Float64("fa", 0.1, "probability of responding to a non-target")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	single := fs.Bool("test", false, "run a single round")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	modeName := fs.String("mode", "dual", "dual, visual (colour) or audio")
	fs.Parse(args)

	mode, err := session.ParseMode(*modeName)
	if err != nil {
		fatalf("%v", err)
	}

	cfg := loadConfig()
	if *participant != "" {
		cfg.Participant = *participant
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	log := setupLogging(cfg, "")
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	if st != nil {
		defer st.Close()
	}

	var rec *metrics.Recorder
	checker := newChecker(cfg, st)
	if cfg.Metrics.Addr != "" {
		rec = metrics.NewRecorder(true)
		serveMetrics(ctx, cfg.Metrics.Addr, rec, checker, log)
	}

	proto := cfg.NBack.Protocol().ForMode(mode)
	if *single {
		proto.Rounds = 1
	}

	started := time.Now()
	run, err := newNBackRun(ctx, cfg, log, st, rec, proto, started)
	if err != nil {
		fatalf("%v", err)
	}
	ctrl, err := run.controller(session.WithSource(sequence.NewSource(*seed)))
	if err != nil {
		run.finish(context.WithoutCancel(ctx))
		fatalf("%v", err)
	}

	checker.Register(health.Component{Name: "session", Check: sessionCheck(ctrl)})
	checker.SetReady(true)

	sum, simErr := session.Simulate(ctx, ctrl, session.NewParticipant(*hit, *fa, *seed), started)
	if err := run.finish(context.WithoutCancel(ctx)); err != nil {
		log.Error("finalise session", "error", err)
	}
	if simErr != nil {
		fatalf("session %s: %v", run.id, simErr)
	}

	fmt.Printf("Session %s  participant %s\n", run.id, run.participant)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Round", "n", "Trials", "Visual", "Audio", "Next n"})
	for _, r := range sum.Rounds {
		tw.AppendRow(table.Row{r.Round, r.N, r.Trials,
			fmt.Sprintf("%.0f%%", r.Visual.Accuracy*100), fmt.Sprintf("%.0f%%", r.Audio.Accuracy*100), r.NextN})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "final n", sum.FinalN})
	tw.Render()

	fmt.Printf("Results: %s\n", run.csv.Path())
	if run.summary != "" {
		fmt.Printf("Summary: %s\n", run.summary)
	}

	if cfg.Metrics.Addr != "" {
		fmt.Printf("Serving metrics on %s until interrupted\n", cfg.Metrics.Addr)
		<-ctx.Done()
	}
}

func sessionCheck(c *session.Controller) health.Check {
	return health.StateCheck(func() (string, error) {
		return c.State().String(), c.Err()
	})
}
