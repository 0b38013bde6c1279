package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cogtask/internal/config"
	"cogtask/internal/export"
	"cogtask/internal/logging"
	"cogtask/internal/metrics"
	"cogtask/internal/sequence"
	"cogtask/internal/session"
	"cogtask/internal/store"
)

// nbackRun owns the outputs of one n-back session: the CSV, the optional
// summary file, the database row and the metrics recorder.
type nbackRun struct {
	id          string
	participant string
	started     time.Time
	proto       session.Protocol
	catalog     session.Catalog
	limits      sequence.Limits

	log     *logging.Logger
	store   *store.Store
	rec     *metrics.Recorder
	csv     *export.NBackWriter
	summary string
	ctrl    *session.Controller
}

func newNBackRun(ctx context.Context, cfg *config.Config, log *logging.Logger, st *store.Store,
	rec *metrics.Recorder, proto session.Protocol, started time.Time) (*nbackRun, error) {
	r := &nbackRun{
		id:          uuid.NewString(),
		participant: export.SanitizeParticipant(cfg.Participant),
		started:     started,
		proto:       proto,
		catalog:     cfg.NBack.StimulusCatalog(),
		limits:      cfg.NBack.Limits(),
		store:       st,
		rec:         rec,
	}
	r.log = log.WithSession(r.id)

	dir, err := exportDir(cfg)
	if err != nil {
		return nil, err
	}
	w, err := export.OpenNBack(dir, started, r.participant)
	if err != nil {
		return nil, err
	}
	r.csv = w
	if cfg.Export.Summary {
		r.summary = w.SummaryPath()
	}

	if st != nil {
		if err := st.CreateSession(ctx, r.id, cfg.Participant, started, proto); err != nil {
			w.Close()
			return nil, err
		}
	}
	return r, nil
}

// exportDir returns the absolute export directory, creating it. Digests
// are recorded under absolute paths.
func exportDir(cfg *config.Config) (string, error) {
	dir, err := filepath.Abs(cfg.ExportDir())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return dir, nil
}

// controller builds the session controller with every configured sink.
func (r *nbackRun) controller(opts ...session.Option) (*session.Controller, error) {
	sinks := []session.Sink{r.csv}
	if r.summary != "" {
		sinks = append(sinks, &export.SummaryWriter{Path: r.summary})
	}
	if r.store != nil {
		sinks = append(sinks, r.store.Sink())
	}
	if r.rec != nil {
		sinks = append(sinks, r.rec)
		opts = append(opts, session.WithGenerationObserver(r.rec))
	}
	opts = append(opts, session.WithSinks(sinks...), session.WithLogger(r.log.Logger),
		session.WithCatalog(r.catalog), session.WithLimits(r.limits))

	c, err := session.New(r.id, r.participant, r.proto, opts...)
	if err != nil {
		return nil, err
	}
	r.ctrl = c
	return c, nil
}

// finish closes the CSV, marks aborted sessions and records the digest of
// every file written.
func (r *nbackRun) finish(ctx context.Context) error {
	errs := []error{r.csv.Close()}

	var sessErr error
	n := r.proto.StartN
	if r.ctrl != nil {
		sessErr = r.ctrl.Err()
		n = r.ctrl.N()
		if sessErr == nil && r.ctrl.State() != session.StateDone {
			sessErr = errors.New("session not finished")
		}
	}
	if sessErr != nil && r.store != nil {
		errs = append(errs, r.store.AbortSession(ctx, r.id, time.Now(), n))
	}

	files := map[string]string{r.csv.Path(): "nback"}
	if r.summary != "" {
		if _, err := os.Stat(r.summary); err == nil {
			files[r.summary] = "summary"
		}
	}
	errs = append(errs, recordExports(ctx, r.store, r.id, files, r.log))
	return errors.Join(errs...)
}

// recordExports digests files concurrently and stores the digests. kinds
// maps each path to its export kind.
func recordExports(ctx context.Context, st *store.Store, sessionID string, kinds map[string]string, log *logging.Logger) error {
	if st == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for path, kind := range kinds {
		g.Go(func() error {
			digest, size, err := export.DigestFile(path)
			if err != nil {
				return err
			}
			log.Debug("export recorded", "path", path, "kind", kind, "digest", digest)
			return st.RecordExport(gctx, store.Export{
				Path:      path,
				SessionID: sessionID,
				Kind:      kind,
				Digest:    digest,
				Size:      size,
				CreatedAt: time.Now(),
			})
		})
	}
	return g.Wait()
}
