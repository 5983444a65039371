// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package job

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/trio2o/trio2o/log"
)

// Coordinator runs jobs with at-most-one-concurrent-execution per (type,
// resource_id) and redoes Fail rows on a periodic sweep.
type Coordinator struct {
	Store              Store
	Logger             log.Logger
	WorkerHandleTimeout time.Duration
	JobRunExpire        time.Duration
	WorkerSleepTime     time.Duration
	Sleep               func(time.Duration) // overridable for tests

	handlers    map[string]Handler
	redoLimiter *rate.Limiter
}

// NewCoordinator returns a Coordinator with an empty handler registry. The
// redo sweep is rate-limited to one attempt per WorkerSleepTime so a caller
// driving RedoFailedJobs on a tight loop doesn't hammer a flapping resource
// with back-to-back re-executions.
func NewCoordinator(store Store, logger log.Logger) *Coordinator {
	workerSleepTime := 10 * time.Second
	return &Coordinator{
		Store:               store,
		Logger:              logger,
		WorkerHandleTimeout: 180 * time.Second,
		JobRunExpire:        180 * time.Second,
		WorkerSleepTime:     workerSleepTime,
		Sleep:               time.Sleep,
		handlers:            map[string]Handler{},
		redoLimiter:         rate.NewLimiter(rate.Every(workerSleepTime), 1),
	}
}

// SetRedoRateLimit reconfigures the redo sweep's rate limit, called after
// WorkerSleepTime is overridden from config.
func (c *Coordinator) SetRedoRateLimit(interval time.Duration) {
	c.redoLimiter = rate.NewLimiter(rate.Every(interval), 1)
}

// RegisterHandler associates jobType with a handler, consulted by
// redo_failed_jobs.
func (c *Coordinator) RegisterHandler(jobType string, h Handler) {
	c.handlers[jobType] = h
}

// Run implements spec.md §4.5's run(ctx, type, resource_id, fn): insert a
// New marker, then loop attempting registration until either a concurrent
// Success lands at or after our marker, or worker_handle_timeout elapses.
func (c *Coordinator) Run(ctx context.Context, jobType, resourceID string, fn Handler) error {
	newRow, err := c.Store.InsertNew(ctx, jobType, resourceID)
	if err != nil {
		return err
	}
	tNew := newRow.Timestamp
	deadline := time.Now().Add(c.WorkerHandleTimeout)

	for time.Now().Before(deadline) {
		latestSuccess, err := c.Store.LatestSuccessAt(ctx, jobType, resourceID)
		if err == nil && !latestSuccess.IsZero() && !latestSuccess.Before(tNew) {
			return nil // someone else already did it
		}

		_, ok, existing, err := c.Store.Register(ctx, jobType, resourceID, extraIDSentinel)
		if err != nil {
			return err
		}

		if ok {
			runErr := fn(ctx, resourceID)
			if runErr != nil {
				c.Logger.WithFields(log.Fields{"job_type": jobType, "resource_id": resourceID}).WithError(runErr).Error("job handler failed")
				return c.Store.MarkFail(ctx, jobType, resourceID, extraIDSentinel)
			}
			return c.Store.MarkSuccess(ctx, jobType, resourceID, extraIDSentinel, tNew)
		}

		// Registration failed: another Running row exists (or the
		// register raced with a just-finished job and saw nothing).
		if existing.Status == Running && time.Since(existing.Timestamp) >= c.JobRunExpire {
			if err := c.Store.ForceFail(ctx, jobType, resourceID, existing.ExtraID); err != nil {
				return err
			}
			continue // retry registration immediately after reclaiming
		}

		c.Sleep(c.WorkerSleepTime)
		if existing.Status == Running {
			return nil // let the current holder finish
		}
	}

	return nil
}

// RedoFailedJobs scans the latest row per (type, resource_id); for each
// whose latest row is Fail and whose type has a registered handler, it
// enqueues exactly one re-execution, chosen uniformly at random from the
// eligible set this tick.
func (c *Coordinator) RedoFailedJobs(ctx context.Context) error {
	if !c.redoLimiter.Allow() {
		return nil
	}

	rows, err := c.Store.LatestByResource(ctx)
	if err != nil {
		return err
	}

	eligible := make([]Job, 0, len(rows))
	for _, row := range rows {
		if row.Status != Fail {
			continue
		}
		if _, ok := c.handlers[row.Type]; !ok {
			continue
		}
		eligible = append(eligible, row)
	}
	if len(eligible) == 0 {
		return nil
	}

	chosen := eligible[rand.Intn(len(eligible))]
	return c.Run(ctx, chosen.Type, chosen.ResourceID, c.handlers[chosen.Type])
}
