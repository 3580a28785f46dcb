package stage_generate

import (
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/runtime"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if jc.Payload().StageID == uuid.Nil && jc.Job.StageID == uuid.Nil {
		return jobrt.Permanent(fmt.Errorf("missing stage_id"))
	}

	res, err := p.stages.ExecuteJob(jc.Ctx, jc.Job, func(pct int, msg string) {
		if perr := jc.Progress(pct, msg); perr != nil {
			p.log.Warn("progress update failed", "job_id", jc.JobID(), "error", perr)
		}
	})
	if err != nil {
		p.log.Warn("stage job attempt failed",
			"job_id", jc.JobID(),
			"attempt", jc.Job.Attempts+1,
			"max_attempts", jc.Job.MaxAttempts,
			"error", err,
		)
		if !services.IsRetryable(err) {
			return jobrt.Permanent(err)
		}
		return err
	}
	return jc.Succeed(res)
}
