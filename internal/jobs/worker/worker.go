package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/runtime"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

// ErrNotClaimed is returned by ProcessNow when the job is not QUEUED or
// another worker claimed it first.
var ErrNotClaimed = errors.New("job not claimable")

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleLockTimeout > 0 enables reclaiming PROCESSING jobs whose lock is
	// older than the timeout. Zero disables it.
	StaleLockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config
	id       string
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	if notify == nil {
		notify = services.NopJobNotifier{}
	}
	id := "worker-" + ulid.Make().String()
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker", "worker", id),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
		id:       id,
	}
}

func (w *Worker) ID() string { return w.id }

// Start runs the pool in the background until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("job worker stopped", "error", err)
		}
	}()
}

// Run blocks until ctx is cancelled. Each slot polls independently.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"job_types", w.registry.Types(),
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		slot := w.slotID(i + 1)
		g.Go(func() error {
			w.runLoop(gctx, slot)
			return nil
		})
	}
	if w.cfg.StaleLockTimeout > 0 {
		g.Go(func() error {
			w.reclaimLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	w.log.Info("Job worker pool stopped")
	return err
}

func (w *Worker) slotID(n int) string { return w.id + "/" + strconv.Itoa(n) }

func (w *Worker) runLoop(ctx context.Context, slot string) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while work is available, then wait for the next tick.
			for ctx.Err() == nil {
				ran, err := w.tick(ctx, slot)
				if err != nil {
					w.log.Warn("job poll failed", "slot", slot, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// Tick claims and runs at most one job. It reports whether a job ran.
func (w *Worker) Tick(ctx context.Context) (bool, error) {
	return w.tick(ctx, w.slotID(1))
}

func (w *Worker) tick(ctx context.Context, slot string) (bool, error) {
	job, err := w.repo.ClaimNext(dbctx.Context{Ctx: ctx}, slot)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job, slot)
	return true, nil
}

// ProcessNow claims one specific job and runs it on the calling goroutine
// with the same claim/finish rules as the polling loop.
func (w *Worker) ProcessNow(ctx context.Context, jobID uuid.UUID) error {
	slot := w.id + "/inline"
	dbc := dbctx.Context{Ctx: ctx}
	won, err := w.repo.TryClaim(dbc, jobID, slot)
	if err != nil {
		return err
	}
	if !won {
		return ErrNotClaimed
	}
	job, err := w.repo.GetByID(dbc, jobID)
	if err != nil {
		return err
	}
	w.execute(ctx, job, slot)
	return nil
}

func (w *Worker) execute(ctx context.Context, job *types.JobRun, slot string) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify, slot)
	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		w.fail(jc, log, runtime.Permanent(&missingHandlerError{JobType: job.JobType}))
		return
	}

	started := time.Now()
	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				err = &panicError{Val: r}
			}
		}()
		return h.Run(jc)
	}()

	if runErr != nil {
		w.fail(jc, log, runErr)
		return
	}
	if !jc.Finished() {
		if err := jc.Succeed(nil); err != nil {
			log.Warn("job complete write failed", "error", err)
			return
		}
	}
	log.Info("job done", "duration_ms", time.Since(started).Milliseconds())
}

func (w *Worker) fail(jc *runtime.Context, log *logger.Logger, err error) {
	if jc.Finished() {
		log.Warn("job handler errored after finishing", "error", err)
		return
	}
	status, ferr := jc.Fail(err)
	if ferr != nil {
		log.Warn("job fail write failed", "error", ferr, "cause", err)
		return
	}
	log.Warn("job attempt failed", "status", status, "permanent", runtime.IsPermanent(err), "error", err)
}

func (w *Worker) reclaimLoop(ctx context.Context) {
	interval := w.cfg.StaleLockTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ReclaimStale(ctx)
		}
	}
}

// ReclaimStale requeues or fails PROCESSING jobs with an expired lock.
func (w *Worker) ReclaimStale(ctx context.Context) {
	if w.cfg.StaleLockTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.cfg.StaleLockTimeout)
	requeued, failed, err := w.repo.ReclaimStale(dbctx.Context{Ctx: ctx}, cutoff)
	if err != nil {
		w.log.Warn("stale job reclaim failed", "error", err)
		return
	}
	if requeued > 0 || failed > 0 {
		w.log.Info("reclaimed stale jobs", "requeued", requeued, "failed", failed)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
