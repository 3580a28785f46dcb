package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/ctxutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

/*
Context is the execution handle for one claimed job run.
It wraps:
	- the job_run row as claimed,
	- the identity of the worker holding the lock,
	- the notifier for job events,
	- and the only sanctioned ways to report progress or finish the run.
Every write goes through the owned-row updates of JobRunRepo, so a worker
that lost its lock cannot overwrite another worker's outcome.
*/
type Context struct {
	Ctx      context.Context
	DB       *gorm.DB
	Job      *types.JobRun
	Repo     repos.JobRunRepo
	Notify   services.JobNotifier
	WorkerID string

	payload  types.JobPayload
	finished bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier, workerID string) *Context {
	if notify == nil {
		notify = services.NopJobNotifier{}
	}
	c := &Context{
		Ctx:      ctxutil.Default(ctx),
		DB:       db,
		Job:      job,
		Repo:     repo,
		Notify:   notify,
		WorkerID: workerID,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Payload, &c.payload)
}

func (c *Context) applyTraceData() {
	if c.Job == nil {
		return
	}
	traceID, spanID := ctxutil.SpanIDs(c.Ctx)
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID: traceID,
		SpanID:  spanID,
		JobID:   c.Job.ID.String(),
	})
}

// Payload returns the decoded payload; malformed payloads decode to zero.
func (c *Context) Payload() types.JobPayload { return c.payload }

func (c *Context) JobID() uuid.UUID {
	if c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

// Finished reports whether Succeed or Fail already ran.
func (c *Context) Finished() bool { return c.finished }

// FinishTimeout bounds each lifecycle write made on a detached context.
const FinishTimeout = 10 * time.Second

// writeDBC detaches lifecycle writes from the run's cancellation so that a
// dropped request or a worker shutdown still releases the lock.
func (c *Context) writeDBC() (dbctx.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Ctx), FinishTimeout)
	return dbctx.Context{Ctx: ctx}, cancel
}

// Progress persists progress/message while the lock is still held.
func (c *Context) Progress(pct int, msg string) error {
	if c.Job == nil || c.finished {
		return nil
	}
	dbc, cancel := c.writeDBC()
	defer cancel()
	if err := c.Repo.UpdateProgress(dbc, c.Job.ID, c.WorkerID, pct, msg); err != nil {
		return err
	}
	c.Job.Progress = pct
	c.Job.Message = msg
	c.Notify.JobProgress(c.Job, pct, msg)
	return nil
}

func (c *Context) Succeed(result any) error {
	if c.Job == nil || c.finished {
		return nil
	}
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		res = datatypes.JSON(b)
	}
	c.finished = true
	dbc, cancel := c.writeDBC()
	defer cancel()
	if err := c.Repo.Complete(dbc, c.Job.ID, c.WorkerID, res); err != nil {
		return err
	}
	c.Job.Status = types.JobDone
	c.Job.Progress = 100
	c.Job.Result = res
	c.Job.Error = ""
	c.Job.LockedAt = nil
	c.Job.LockedBy = ""
	c.Notify.JobDone(c.Job)
	return nil
}

// Fail records a failed attempt. The job is requeued unless attempts are
// exhausted or err is Permanent. The resulting status is returned.
func (c *Context) Fail(err error) (types.JobStatus, error) {
	if c.Job == nil || c.finished {
		return "", nil
	}
	msg := "unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	c.finished = true
	dbc, cancel := c.writeDBC()
	defer cancel()
	status, ferr := c.Repo.Fail(dbc, c.Job.ID, c.WorkerID, msg, IsPermanent(err))
	if ferr != nil {
		return "", ferr
	}
	c.Job.Status = status
	c.Job.Attempts++
	c.Job.Error = msg
	c.Job.LockedAt = nil
	c.Job.LockedBy = ""
	if status == types.JobFailed {
		c.Notify.JobFailed(c.Job, msg)
	} else {
		c.Notify.JobProgress(c.Job, c.Job.Progress, "retrying")
	}
	return status, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
