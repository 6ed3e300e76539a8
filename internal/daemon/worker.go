package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/sempr/studenttester-go/internal/report"
)

type finished struct {
	slot int
	id   int
	doc  *report.Document
	err  error
	took time.Duration
}

// Worker manages the cycle of fetching and grading jobs.
type Worker struct {
	cfg     *Config
	fetcher JobFetcher
	grader  Grader
	store   ResultStore
	done    chan finished
	running map[int]int // slot -> submission id
}

func NewWorker(cfg *Config, fetcher JobFetcher, grader Grader, store ResultStore) *Worker {
	return &Worker{
		cfg:     cfg,
		fetcher: fetcher,
		grader:  grader,
		store:   store,
		done:    make(chan finished, cfg.MaxRunning),
		running: make(map[int]int),
	}
}

// Run starts the main worker loop. It returns when ctx is done, or in once
// mode when a cycle finds nothing to do, after the running jobs finish.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.cfg.SleepTime) * time.Second)
	defer ticker.Stop()
	defer w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		started := w.work(ctx)

		if w.cfg.Once && started == 0 && len(w.running) == 0 {
			return
		}
		if started == 0 {
			slog.Debug("Sleeping", "duration_sec", w.cfg.SleepTime)
			select {
			case <-ctx.Done():
				return
			case f := <-w.done:
				w.finish(ctx, f)
			case <-ticker.C:
			}
		}
	}
}

// work performs a single iteration of fetching and assigning jobs.
func (w *Worker) work(ctx context.Context) int {
	w.cleanupFinishedJobs(ctx)

	free := w.cfg.MaxRunning - len(w.running)
	if free <= 0 {
		return 0
	}
	jobs, err := w.fetcher.GetJobs(ctx, free)
	if err != nil {
		slog.Error("Could not get jobs", "err", err)
		return 0
	}

	started := 0
	for _, id := range jobs {
		slot := w.freeSlot()
		if slot < 0 {
			break
		}
		ok, err := w.fetcher.CheckOut(ctx, id)
		if err != nil {
			slog.Error("Checkout failed for submission", "submission_id", id, "err", err)
			continue
		}
		if !ok {
			continue
		}
		slog.Info("Starting grading", "submission_id", id, "slot", slot)
		w.running[slot] = id
		ActiveJobs.Inc()
		go w.grade(ctx, slot, id)
		started++
	}
	return started
}

func (w *Worker) freeSlot() int {
	for i := 0; i < w.cfg.MaxRunning; i++ {
		if _, busy := w.running[i]; !busy {
			return i
		}
	}
	return -1
}

func (w *Worker) grade(ctx context.Context, slot, id int) {
	start := time.Now()
	doc, err := w.grader.Grade(ctx, id)
	w.done <- finished{slot: slot, id: id, doc: doc, err: err, took: time.Since(start)}
}

func (w *Worker) cleanupFinishedJobs(ctx context.Context) {
	for {
		select {
		case f := <-w.done:
			w.finish(ctx, f)
		default:
			return
		}
	}
}

func (w *Worker) finish(ctx context.Context, f finished) {
	delete(w.running, f.slot)
	ActiveJobs.Dec()
	GradeDuration.Observe(f.took.Seconds())

	status := "graded"
	if f.err != nil {
		status = "failed"
		slog.Error("Grading failed", "submission_id", f.id, "err", f.err)
	} else {
		GradePercent.Observe(f.doc.Percent)
		slog.Info("Grading finished", "submission_id", f.id, "slot", f.slot, "percent", f.doc.Percent, "run_id", f.doc.RunID)
	}
	// results are stored even after shutdown was requested
	storeCtx := context.WithoutCancel(ctx)
	if err := w.store.Store(storeCtx, f.id, f.doc); err != nil {
		status = "store_failed"
		slog.Error("Could not store result", "submission_id", f.id, "err", err)
	}
	JobsTotal.WithLabelValues(status).Inc()
}

// drain waits for the jobs still running.
func (w *Worker) drain(ctx context.Context) {
	for len(w.running) > 0 {
		w.finish(ctx, <-w.done)
	}
}
