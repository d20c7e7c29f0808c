package registry

import (
	"context"
	"time"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/metrics"
)

// RunSweeper periodically reclaims expired leases and forgets workers
// that have gone silent past WORKER_TTL (spec §5). It blocks until ctx
// is cancelled; callers run it in its own goroutine, grounded on the
// teacher's periodic-ticker health-check pattern.
func (r *Registry) RunSweeper(ctx context.Context) {
	period := r.cfg.LeaseTTL / 2
	if period <= 0 {
		period = DefaultLeaseTTL / 2
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpiredLeases()
			r.forgetStaleWorkers()
		}
	}
}

func (r *Registry) sweepExpiredLeases() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	running, err := r.jobs.ListTasksByStatus(core.TaskStatusAssigned)
	if err != nil {
		running = nil
	}
	assigned, err := r.jobs.ListTasksByStatus(core.TaskStatusRunning)
	if err == nil {
		running = append(running, assigned...)
	}

	swept := 0
	for _, task := range running {
		if task.Lease == nil || now.Before(task.Lease.ExpiresAt) {
			continue
		}

		job, err := r.jobs.GetJob(task.JobID)
		if err != nil {
			continue
		}

		expiredWorker := task.Lease.WorkerID
		task.CooldownWorker = expiredWorker
		task.CooldownUntil = now.Add(r.cfg.LeaseTTL)
		task.Lease = nil
		task.RetryCount++
		task.LastError = &core.TaskError{Kind: "LeaseExpired", Detail: "worker heartbeat stopped before task completion", Timestamp: now}
		metrics.LeaseExpirations.Inc()

		if task.RetryCount > r.cfg.MaxRetries {
			task.Status = core.TaskStatusFailed
			_ = r.jobs.UpdateTask(task)
			job.Status = core.JobStatusFailed
			job.LastError = task.LastError
			job.CompletedAt = &now
			_ = r.jobs.UpdateJob(job)
			swept++
			continue
		}

		task.Status = core.TaskStatusPending
		task.PendingSince = now
		if err := r.jobs.UpdateTask(task); err == nil {
			_ = r.queue.Push(task)
		}
		swept++
	}
	if swept > 0 {
		r.logger.Info("swept expired leases", "count", swept)
	}
	return swept
}

func (r *Registry) forgetStaleWorkers() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := time.Now().UTC().Add(-r.cfg.WorkerTTL)
	stale, err := r.workers.ListStale(threshold)
	if err != nil {
		return 0
	}
	for _, w := range stale {
		_ = r.workers.Delete(w.ID)
	}
	if remaining, err := r.workers.List(); err == nil {
		metrics.ActiveWorkers.Set(float64(len(remaining)))
	}
	if len(stale) > 0 {
		r.logger.Info("forgot stale workers", "count", len(stale))
	}
	return len(stale)
}
