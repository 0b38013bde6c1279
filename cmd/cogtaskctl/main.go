// cogtaskctl runs, simulates and inspects cognitive task sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"cogtask/internal/config"
	"cogtask/internal/health"
	"cogtask/internal/logging"
	"cogtask/internal/metrics"
	"cogtask/internal/store"
)

var (
	configPath = flag.String("config", "", "path to config file")
	verbose    = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "generate":
		cmdGenerate(args)
	case "simulate":
		cmdSimulate(args)
	case "play":
		cmdPlay(args)
	case "import-words":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: cogtaskctl import-words <words.csv> <out.yaml>")
			os.Exit(1)
		}
		cmdImportWords(args[0], args[1])
	case "history":
		cmdHistory(args)
	case "verify":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: cogtaskctl verify <file>")
			os.Exit(1)
		}
		cmdVerify(args[0])
	case "init":
		cmdInit()
	case "config":
		cmdConfig()
	case "check":
		cmdCheck()
	case "watch":
		cmdWatch(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `cogtaskctl - Cognitive task runner

Usage: cogtaskctl [options] <command> [args]

Commands:
  generate                  Print a generated n-back sequence
  simulate                  Run an adaptive n-back session with a simulated participant
  play                      Run the interactive terminal tasks
  import-words <csv> <out>  Convert a flanker word CSV into a YAML word list
  history                   List stored sessions
  verify <file>             Check a result file against its recorded digest
  init                      Write the default configuration if none exists
  config                    Print the effective configuration
  check                     Check the database and export directory
  watch                     Report result files edited after they were recorded
  help                      Show this help message

Options:
  -config <path>  Path to config file (default: `+config.ConfigPath()+`)
  -v              Enable debug logging

Run 'cogtaskctl <command> -h' for command options.`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdInit() {
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		fatalf("%v", err)
	}
	if !created {
		fmt.Printf("Config already exists: %s\n", path)
		return
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote default config: %s\n", path)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// setupLogging builds the process logger from the logging section.
func setupLogging(cfg *config.Config, output string) *logging.Logger {
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err == nil {
		lc.Level = level
	}
	if *verbose {
		lc.Level = logging.LevelDebug
	}
	if f, err := logging.ParseFormat(cfg.Logging.Format); err == nil {
		lc.Format = f
	}
	lc.Output = cfg.Logging.Output
	if output != "" {
		lc.Output = output
	}
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups

	log, err := logging.New(lc)
	if err != nil {
		fatalf("setup logging: %v", err)
	}
	logging.SetDefault(log)
	return log
}

// openStore opens the result database, or returns nil when storage is
// disabled.
func openStore(cfg *config.Config) *store.Store {
	path := cfg.DatabasePath()
	if path == "" {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return st
}

// newChecker registers the checks shared by every command that runs a
// session.
func newChecker(cfg *config.Config, st *store.Store) *health.Checker {
	c := health.NewChecker()
	if st != nil {
		c.Register(health.Component{Name: "store", Critical: true, Check: health.PingCheck(st.Ping)})
	}
	c.Register(health.Component{Name: "exports", Critical: true, Check: health.DirWritableCheck(cfg.ExportDir())})
	return c
}

// serveMetrics exposes rec and the health endpoints on addr until ctx is
// done.
func serveMetrics(ctx context.Context, addr string, rec *metrics.Recorder, checker *health.Checker, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/readyz", checker.ReadyHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
}

func cmdCheck() {
	cfg := loadConfig()
	st := openStore(cfg)
	if st != nil {
		defer st.Close()
	}

	checker := newChecker(cfg, st)
	rep := checker.Report(context.Background())
	for _, name := range rep.Checked {
		r := rep.Components[name]
		line := fmt.Sprintf("%-8s %-9s %s", name, r.Status, r.Message)
		if r.Error != "" {
			line += ": " + r.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("overall: %s\n", rep.Status)
	if rep.Status != health.StatusHealthy {
		os.Exit(1)
	}
}
