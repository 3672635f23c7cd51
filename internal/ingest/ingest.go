package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/pipeline"
)

// Upserter is the write surface the ingester drives.
type Upserter interface {
	Upsert(ctx context.Context, req pipeline.UpsertRequest) (*pipeline.UpsertResult, error)
}

// defaultWorkers bounds batch concurrency. Writes to the same record key are
// serialized downstream, so more workers only help across distinct keys.
const defaultWorkers = 4

// Config configures a batch ingester.
type Config struct {
	// Workers is the number of concurrent upserts. Zero means defaultWorkers.
	Workers int
}

// RecordResult is the outcome of one record in the batch, in input order.
type RecordResult struct {
	ID       string
	ModelTag string
	Status   pipeline.UpsertStatus
	Version  int64
	Err      error
}

// Ingester writes batches of records through an Upserter with a bounded
// worker pool. A failed record is counted and reported; it does not stop the
// rest of the batch.
type Ingester struct {
	upserter Upserter
	config   Config

	mu       sync.Mutex
	running  bool
	progress *Progress
	doneCh   chan struct{}
	results  []RecordResult
	err      error
}

// New creates a batch ingester over the given write surface.
func New(upserter Upserter, cfg Config) (*Ingester, error) {
	if upserter == nil {
		return nil, cerrors.Validation("upserter is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Ingester{
		upserter: upserter,
		config:   cfg,
		progress: NewProgress(0),
	}, nil
}

// Progress returns the tracker for the current (or last) batch.
func (in *Ingester) Progress() *Progress {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.progress
}

// IsRunning reports whether a batch is in flight.
func (in *Ingester) IsRunning() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.running
}

// Start begins ingesting the batch in a background goroutine and returns
// immediately. Use Wait to block for the results. Starting while a batch is
// already running is a no-op.
func (in *Ingester) Start(ctx context.Context, reqs []pipeline.UpsertRequest) {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return
	}
	in.running = true
	in.progress = NewProgress(len(reqs))
	in.doneCh = make(chan struct{})
	in.results = nil
	in.err = nil
	progress := in.progress
	done := in.doneCh
	in.mu.Unlock()

	go func() {
		defer close(done)
		results, err := in.run(ctx, reqs, progress)

		in.mu.Lock()
		in.running = false
		in.results = results
		in.err = err
		in.mu.Unlock()
	}()
}

// Wait blocks until the running batch finishes and returns its per-record
// results in input order.
func (in *Ingester) Wait() ([]RecordResult, error) {
	in.mu.Lock()
	done := in.doneCh
	in.mu.Unlock()
	if done != nil {
		<-done
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.results, in.err
}

// Run ingests the batch synchronously.
func (in *Ingester) Run(ctx context.Context, reqs []pipeline.UpsertRequest) ([]RecordResult, error) {
	in.Start(ctx, reqs)
	return in.Wait()
}

func (in *Ingester) run(ctx context.Context, reqs []pipeline.UpsertRequest, progress *Progress) ([]RecordResult, error) {
	start := time.Now()
	results := make([]RecordResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Workers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := in.upserter.Upsert(gctx, req)
			if err != nil {
				progress.RecordFailed(err.Error())
				results[i] = RecordResult{ID: req.ID, ModelTag: req.ModelTag, Err: err}
				return nil
			}
			switch res.Status {
			case pipeline.StatusInserted:
				progress.RecordInserted()
			case pipeline.StatusUpdated:
				progress.RecordUpdated()
			case pipeline.StatusSkipped:
				progress.RecordSkipped()
			}
			results[i] = RecordResult{
				ID:       res.ID,
				ModelTag: res.ModelTag,
				Status:   res.Status,
				Version:  res.Version,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		progress.SetError(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return results, cerrors.Timeout("batch ingest", err)
		}
		return results, err
	}
	progress.SetDone()

	snap := progress.Snapshot()
	slog.Info("batch_ingest_complete",
		slog.Int("total", snap.Total),
		slog.Int("inserted", snap.Inserted),
		slog.Int("updated", snap.Updated),
		slog.Int("skipped", snap.Skipped),
		slog.Int("failed", snap.Failed),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}
