package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/metrics"
	"github.com/crowdcompute/crowdcompute/internal/plugin"
)

// Claim implements the worker's poll-for-work operation (spec §4.4): pop
// the oldest eligible Pending task not in cooldown for this worker, lease
// it, and return it. Returns nil, nil when there is nothing to hand out
// right now.
func (r *Registry) Claim(workerID string) (*core.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchWorkerLocked(workerID, nil)

	now := time.Now().UTC()
	var deferred []*core.Task

	for {
		task, err := r.queue.Pop()
		if err != nil {
			for _, t := range deferred {
				_ = r.queue.Push(t)
			}
			return nil, nil
		}
		if job, jerr := r.jobs.GetJob(task.JobID); jerr == nil && job.Status == core.JobStatusCancelled {
			// A cancelled job rejects further claims for its tasks
			// (spec §5); drop it from the queue rather than requeueing.
			continue
		}
		if task.CooldownWorker == workerID && now.Before(task.CooldownUntil) {
			deferred = append(deferred, task)
			continue
		}

		task.Status = core.TaskStatusAssigned
		task.Lease = &core.Lease{
			WorkerID:  workerID,
			IssuedAt:  now,
			ExpiresAt: now.Add(r.cfg.LeaseTTL),
		}
		task.StartedAt = &now
		if err := r.jobs.UpdateTask(task); err != nil {
			for _, t := range deferred {
				_ = r.queue.Push(t)
			}
			return nil, err
		}
		for _, t := range deferred {
			_ = r.queue.Push(t)
		}

		w, _ := r.workers.Get(workerID)
		if w != nil {
			w.HeldTaskID = &task.ID
			_ = r.workers.Touch(w)
		}

		if job, err := r.jobs.GetJob(task.JobID); err == nil && job.Status == core.JobStatusPending {
			job.Status = core.JobStatusRunning
			job.StartedAt = &now
			_ = r.jobs.UpdateJob(job)
		}

		metrics.TasksClaimed.WithLabelValues(string(task.Type)).Inc()
		metrics.PendingQueueDepth.Set(float64(r.queue.Len()))
		r.logger.Info("task claimed", "task_id", task.ID.String(), "worker_id", workerID)
		return task, nil
	}
}

// HeartbeatResult tells the worker whether to keep running the task.
type HeartbeatResult struct {
	Reassigned bool
}

// Heartbeat renews a held lease, or tells the caller the task has been
// reassigned (lease expired and was reclaimed, or the job was
// cancelled) so the worker should kill its container and stop (spec §5).
func (r *Registry) Heartbeat(workerID string, taskID uuid.UUID) (HeartbeatResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchWorkerLocked(workerID, &taskID)

	task, err := r.jobs.GetTask(taskID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if task.Lease == nil || task.Lease.WorkerID != workerID {
		return HeartbeatResult{Reassigned: true}, nil
	}

	job, err := r.jobs.GetJob(task.JobID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if job.Status == core.JobStatusCancelled {
		return HeartbeatResult{Reassigned: true}, nil
	}

	now := time.Now().UTC()
	task.Status = core.TaskStatusRunning
	task.Lease.ExpiresAt = now.Add(r.cfg.LeaseTTL)
	if err := r.jobs.UpdateTask(task); err != nil {
		return HeartbeatResult{}, err
	}
	return HeartbeatResult{}, nil
}

// ReportOutcome is the worker's terminal report for a held task.
type ReportOutcome struct {
	Succeeded bool
	ErrKind   string
	Detail    string
}

// Report finalizes a task's outcome (spec §4.2, §4.6). On success it
// advances job-level bookkeeping, creating the reduce task once every
// map task has succeeded; on failure it increments RetryCount, applies
// a cooldown against the reporting worker, and requeues unless
// MAX_RETRIES is exhausted, which fails the whole job.
func (r *Registry) Report(workerID string, taskID uuid.UUID, outcome ReportOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := r.jobs.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Lease == nil || task.Lease.WorkerID != workerID {
		return core.NewError(core.KindConflict, "task is not held by this worker")
	}

	job, err := r.jobs.GetJob(task.JobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.EndedAt = &now
	task.Lease = nil

	w, _ := r.workers.Get(workerID)
	if w != nil {
		w.HeldTaskID = nil
		_ = r.workers.Touch(w)
	}

	if job.Status == core.JobStatusCancelled {
		task.Status = core.TaskStatusFailed
		return r.jobs.UpdateTask(task)
	}

	if !outcome.Succeeded {
		return r.failTaskLocked(job, task, workerID, outcome, now)
	}
	if err := r.validateOutputsLocked(job.ID, task); err != nil {
		return r.failTaskLocked(job, task, workerID, ReportOutcome{ErrKind: "OutputMissing", Detail: err.Error()}, now)
	}
	return r.succeedTaskLocked(job, task, now)
}

// validateOutputsLocked checks that every one of the task's declared
// outputs has actually been put to the artifact store (spec §4.4)
// before a success report is allowed to finalize the task.
func (r *Registry) validateOutputsLocked(jobID uuid.UUID, task *core.Task) error {
	if len(task.ExpectedOutputs) == 0 {
		return nil
	}
	stored, err := r.artifacts.List(jobID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(stored))
	for _, name := range stored {
		have[name] = true
	}
	for _, name := range task.ExpectedOutputs {
		if !have[task.ArtifactName(name)] {
			return fmt.Errorf("expected output %s was not uploaded", name)
		}
	}
	return nil
}

// maxRetriesFor returns the retry budget for a failure kind.
// OutputMissing is retried once then goes terminal, regardless of
// MAX_RETRIES (spec §7, §9 open-question resolution); every other kind
// uses the configured budget.
func (r *Registry) maxRetriesFor(errKind string) int {
	if errKind == "OutputMissing" {
		return 1
	}
	return r.cfg.MaxRetries
}

func (r *Registry) failTaskLocked(job *core.Job, task *core.Task, workerID string, outcome ReportOutcome, now time.Time) error {
	task.LastError = &core.TaskError{Kind: outcome.ErrKind, Detail: outcome.Detail, Timestamp: now}
	task.RetryCount++
	task.CooldownWorker = workerID
	task.CooldownUntil = now.Add(r.cfg.LeaseTTL)

	if task.RetryCount > r.maxRetriesFor(outcome.ErrKind) {
		task.Status = core.TaskStatusFailed
		if err := r.jobs.UpdateTask(task); err != nil {
			return err
		}
		job.Status = core.JobStatusFailed
		job.LastError = task.LastError
		job.CompletedAt = &now
		metrics.TasksCompleted.WithLabelValues(string(task.Type), "failed").Inc()
		metrics.JobsCompleted.WithLabelValues(string(job.Status)).Inc()
		return r.jobs.UpdateJob(job)
	}

	task.Status = core.TaskStatusPending
	task.PendingSince = now
	if err := r.jobs.UpdateTask(task); err != nil {
		return err
	}
	return r.queue.Push(task)
}

func (r *Registry) succeedTaskLocked(job *core.Job, task *core.Task, now time.Time) error {
	task.Status = core.TaskStatusSucceeded
	if err := r.jobs.UpdateTask(task); err != nil {
		return err
	}
	metrics.TasksCompleted.WithLabelValues(string(task.Type), "succeeded").Inc()

	switch task.Type {
	case core.TaskTypeSingle:
		job.Status = core.JobStatusSucceeded
		job.CompletedAt = &now
		if len(task.ExpectedOutputs) > 0 {
			job.FinalOutput = task.ExpectedOutputs[0]
		}
		metrics.JobsCompleted.WithLabelValues(string(job.Status)).Inc()
		return r.jobs.UpdateJob(job)

	case core.TaskTypeMap:
		job.MapCompleted++
		if job.MapCompleted < job.MapTotal {
			return r.jobs.UpdateJob(job)
		}
		reduceTask, err := r.createReduceTaskLocked(job, now)
		if err != nil {
			return err
		}
		if err := r.jobs.CreateTask(reduceTask); err != nil {
			return err
		}
		if err := r.queue.Push(reduceTask); err != nil {
			return err
		}
		return r.jobs.UpdateJob(job)

	case core.TaskTypeReduce:
		job.Status = core.JobStatusSucceeded
		job.CompletedAt = &now
		if len(task.ExpectedOutputs) > 0 {
			job.FinalOutput = task.ExpectedOutputs[0]
		}
		metrics.JobsCompleted.WithLabelValues(string(job.Status)).Inc()
		return r.jobs.UpdateJob(job)
	}
	return nil
}

// createReduceTaskLocked builds the reduce task once every map task has
// succeeded. An unknown reduce plugin is not rejected here: the task is
// still created and dispatched, and the claiming worker reports
// PluginUnknown, the same per-claim failure path as any other plugin
// kind (spec §7).
func (r *Registry) createReduceTaskLocked(job *core.Job, now time.Time) (*core.Task, error) {
	desc, _ := plugin.Get(job.ReducePlugin)

	mapTasks, err := r.jobs.ListTasksByJob(job.ID)
	if err != nil {
		return nil, err
	}
	var inputs []string
	for _, t := range mapTasks {
		if t.Type != core.TaskTypeMap {
			continue
		}
		for _, out := range t.ExpectedOutputs {
			inputs = append(inputs, t.ArtifactName(out))
		}
	}

	return &core.Task{
		ID:              uuid.New(),
		JobID:           job.ID,
		Type:            core.TaskTypeReduce,
		ShardIndex:      -1,
		PluginKind:      job.ReducePlugin,
		Params:          job.Params,
		InputNames:      inputs,
		ExpectedOutputs: desc.ExpectedOutputs,
		Status:          core.TaskStatusPending,
		PendingSince:    now,
	}, nil
}

func (r *Registry) touchWorkerLocked(workerID string, heldTaskID *uuid.UUID) {
	w, err := r.workers.Get(workerID)
	if err != nil {
		w = &core.Worker{ID: workerID}
	}
	w.LastSeenAt = time.Now().UTC()
	if heldTaskID != nil {
		w.HeldTaskID = heldTaskID
	}
	_ = r.workers.Touch(w)
}
