package services

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

const (
	JobEventCreated  = "job.created"
	JobEventProgress = "job.progress"
	JobEventDone     = "job.done"
	JobEventFailed   = "job.failed"
)

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, progress int, message string)
	JobFailed(job *types.JobRun, errorMessage string)
	JobDone(job *types.JobRun)
}

// JobEvent is the message published for every job transition.
type JobEvent struct {
	Event     string          `json:"event"`
	JobID     string          `json:"job_id"`
	JobType   string          `json:"job_type"`
	OrgID     string          `json:"org_id"`
	ProjectID string          `json:"project_id"`
	StageID   string          `json:"stage_id"`
	Status    types.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

// JobEventChannel is the pub/sub channel carrying an org's job events.
func JobEventChannel(orgID string) string { return "jobs:" + orgID }

type redisJobNotifier struct {
	rdb goredis.UniversalClient
	log *logger.Logger
}

// NewJobNotifier publishes on Redis when rdb is set and drops events otherwise.
func NewJobNotifier(rdb goredis.UniversalClient, baseLog *logger.Logger) JobNotifier {
	if rdb == nil {
		return NopJobNotifier{}
	}
	return &redisJobNotifier{rdb: rdb, log: baseLog.With("component", "JobNotifier")}
}

func (n *redisJobNotifier) publish(event string, job *types.JobRun, msg, errMsg string) {
	if job == nil {
		return
	}
	ev := JobEvent{
		Event:     event,
		JobID:     job.ID.String(),
		JobType:   job.JobType,
		OrgID:     job.OrgID.String(),
		ProjectID: job.ProjectID.String(),
		StageID:   job.StageID.String(),
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   msg,
		Error:     errMsg,
		At:        time.Now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.rdb.Publish(ctx, JobEventChannel(ev.OrgID), b).Err(); err != nil {
		n.log.Warn("job event publish failed", "event", event, "job_id", ev.JobID, "error", err)
	}
}

func (n *redisJobNotifier) JobCreated(job *types.JobRun) {
	n.publish(JobEventCreated, job, "", "")
}

func (n *redisJobNotifier) JobProgress(job *types.JobRun, progress int, message string) {
	n.publish(JobEventProgress, job, message, "")
}

func (n *redisJobNotifier) JobFailed(job *types.JobRun, errorMessage string) {
	n.publish(JobEventFailed, job, "", errorMessage)
}

func (n *redisJobNotifier) JobDone(job *types.JobRun) {
	n.publish(JobEventDone, job, "", "")
}

type NopJobNotifier struct{}

func (NopJobNotifier) JobCreated(*types.JobRun)               {}
func (NopJobNotifier) JobProgress(*types.JobRun, int, string) {}
func (NopJobNotifier) JobFailed(*types.JobRun, string)        {}
func (NopJobNotifier) JobDone(*types.JobRun)                  {}
