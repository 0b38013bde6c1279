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

	"github.com/jedib0t/go-pretty/v6/table"

	"cogtask/internal/export"
	"cogtask/internal/flanker"
	"cogtask/internal/store"
	"cogtask/internal/watcher"
)

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	participant := fs.String("participant", "", "only sessions of this participant")
	limit := fs.Int("limit", 20, "maximum sessions to list, 0 for all")
	exports := fs.Bool("exports", false, "list the result files of each session")
	fs.Parse(args)

	cfg := loadConfig()
	st := openStore(cfg)
	if st == nil {
		fatalf("storage is disabled")
	}
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ListSessions(ctx, *participant, *limit)
	if err != nil {
		fatalf("%v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Session", "Participant", "Task", "Started", "Duration", "Final n", "Status"})
	for _, s := range sessions {
		duration, finalN := "", ""
		if !s.EndedAt.IsZero() {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		if s.Task == store.TaskNBack && s.Status == store.StatusFinished {
			finalN = fmt.Sprint(s.FinalN)
		}
		tw.AppendRow(table.Row{s.ID[:8], s.Participant, s.Task,
			s.StartedAt.Format("2006-01-02 15:04:05"), duration, finalN, s.Status})

		if !*exports {
			continue
		}
		files, err := st.ExportsForSession(ctx, s.ID)
		if err != nil {
			fatalf("%v", err)
		}
		for _, e := range files {
			tw.AppendRow(table.Row{"", "", e.Kind, filepath.Base(e.Path), "", "", e.Digest[:12]})
		}
	}
	tw.Render()
}

func cmdVerify(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		fatalf("%v", err)
	}

	cfg := loadConfig()
	st := openStore(cfg)
	if st == nil {
		fatalf("storage is disabled")
	}
	defer st.Close()

	rec, err := st.ExportByPath(context.Background(), abs)
	if err != nil {
		fatalf("%v", err)
	}
	if rec == nil {
		fmt.Printf("%s: not a recorded result file\n", path)
		os.Exit(1)
	}

	err = export.VerifyFile(abs, rec.Digest)
	switch {
	case errors.Is(err, export.ErrDigestMismatch):
		fmt.Printf("%s: MODIFIED since %s\n", path, rec.CreatedAt.Format("2006-01-02 15:04:05"))
		os.Exit(2)
	case err != nil:
		fatalf("%v", err)
	}
	fmt.Printf("%s: OK (%s, %d bytes, session %s)\n", path, rec.Kind, rec.Size, rec.SessionID)
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	settle := fs.Duration("settle", time.Second, "quiet period before a changed file is checked")
	fs.Parse(args)

	cfg := loadConfig()
	log := setupLogging(cfg, "")
	defer log.Close()

	st := openStore(cfg)
	if st == nil {
		fatalf("storage is disabled")
	}
	defer st.Close()

	lookup := func(ctx context.Context, path string) (string, bool, error) {
		rec, err := st.ExportByPath(ctx, path)
		if err != nil || rec == nil {
			return "", false, err
		}
		return rec.Digest, true, nil
	}
	w, err := watcher.New(cfg.ExportDir(), *settle, lookup)
	if err != nil {
		fatalf("%v", err)
	}
	if err := w.Start(); err != nil {
		fatalf("watch %s: %v", cfg.ExportDir(), err)
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s\n", w.Dir())
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.Errors():
			log.Error("check failed", "error", err)
		case ev := <-w.Events():
			switch {
			case ev.Removed():
				log.Warn("result file removed", "path", ev.Path)
				fmt.Printf("%s REMOVED\n", ev.Path)
			case ev.Modified():
				log.Warn("result file modified", "path", ev.Path, "want", ev.Want, "got", ev.Got)
				fmt.Printf("%s MODIFIED\n", ev.Path)
			default:
				log.Debug("result file unchanged", "path", ev.Path)
			}
		}
	}
}

func cmdImportWords(csvPath, yamlPath string) {
	words, err := flanker.ImportCSV(csvPath, yamlPath)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Imported %d negative and %d neutral words into %s\n",
		len(words.Negative), len(words.Neutral), yamlPath)
}
