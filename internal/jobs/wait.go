package jobs

import (
	"context"
	"errors"
	"time"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
)

// ErrStillRunning is returned by WaitForJob when the attempts run out before
// the job reached DONE or FAILED. The last observed job is returned with it.
var ErrStillRunning = errors.New("job still running")

// StatusFunc reads the current state of one job.
type StatusFunc func(ctx context.Context) (*types.JobRun, error)

// WaitForJob polls get every interval, at most maxAttempts times, until the
// job is terminal. A FAILED job is returned without error; callers read
// job.Error.
func WaitForJob(ctx context.Context, get StatusFunc, interval time.Duration, maxAttempts int) (*types.JobRun, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	var last *types.JobRun
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return last, ctx.Err()
			case <-t.C:
			}
		}
		job, err := get(ctx)
		if err != nil {
			return last, err
		}
		last = job
		if job != nil && job.Status.Terminal() {
			return job, nil
		}
	}
	return last, ErrStillRunning
}
