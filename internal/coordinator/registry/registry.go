// Package registry implements the coordinator's Job/Task Registry and
// Dispatcher (spec §4.2, §4.4): the authoritative state machine for
// jobs and tasks, and the at-most-one-assignment claim/heartbeat/report
// protocol workers use to pull and complete work.
//
// Per spec §9 ("Global coordinator state"), a Registry is a single
// owned structure passed into request handlers, not a process-global;
// every mutation is serialized through mu, a short, non-blocking
// critical section.
package registry

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crowdcompute/crowdcompute/internal/artifact"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/metrics"
	"github.com/crowdcompute/crowdcompute/internal/plugin"
	"github.com/crowdcompute/crowdcompute/internal/shared/logging"
)

const (
	DefaultMaxRetries = 3
	DefaultLeaseTTL   = 30 * time.Second
	DefaultWorkerTTL  = 90 * time.Second
)

// Config bounds retry and liveness behavior (spec §5 "Cancellation &
// timeouts").
type Config struct {
	MaxRetries int
	LeaseTTL   time.Duration
	WorkerTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.WorkerTTL <= 0 {
		c.WorkerTTL = DefaultWorkerTTL
	}
	return c
}

// Registry is the coordinator's owned state: the Job/Task Registry and
// Dispatcher combined, since a reduce task's dispatch eligibility is an
// intrinsic Registry invariant (spec §4.2) rather than a separate
// concern layered on top.
type Registry struct {
	mu sync.Mutex

	jobs      core.JobStore
	workers   core.WorkerStore
	artifacts artifact.Store
	queue     core.PendingQueue

	cfg    Config
	logger logging.Logger
}

func New(jobs core.JobStore, workers core.WorkerStore, artifacts artifact.Store, cfg Config, logger logging.Logger) *Registry {
	return &Registry{
		jobs:      jobs,
		workers:   workers,
		artifacts: artifacts,
		queue:     core.NewPendingQueue(),
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// SubmitParams is the coordinator's SubmitJob operation input (spec §6).
type SubmitParams struct {
	Shape        core.JobShape
	MapPlugin    string
	ReducePlugin string
	Shards       int
	Params       map[string]string
	Inputs       map[string][]byte
}

// SubmitJob validates and decomposes a submission into its initial task
// set (spec §4.2 "Job shapes and task creation").
func (r *Registry) SubmitJob(p SubmitParams) (*core.Job, error) {
	if p.Shape == core.JobShapeMapReduce {
		if p.ReducePlugin == "" {
			return nil, core.NewError(core.KindBadRequest, "map_reduce job requires reduce_plugin")
		}
		if p.Shards < 1 {
			return nil, core.NewError(core.KindBadRequest, "map_reduce job requires shards >= 1")
		}
	}
	if p.MapPlugin == "" {
		return nil, core.NewError(core.KindBadRequest, "map_plugin is required")
	}
	// An unknown plugin kind is not a SubmitJob failure (spec §6 only
	// lists BadRequest here): the job is still created, and the
	// claiming worker reports PluginUnknown per task attempt (spec §7).
	// mapDesc is the zero Descriptor when the kind is unregistered, so
	// ExpectedOutputs below is simply empty.
	mapDesc, _ := plugin.Get(p.MapPlugin)

	job := &core.Job{
		ID:           uuid.New(),
		Shape:        p.Shape,
		MapPlugin:    p.MapPlugin,
		ReducePlugin: p.ReducePlugin,
		Shards:       p.Shards,
		Params:       p.Params,
		Status:       core.JobStatusPending,
		SubmittedAt:  time.Now().UTC(),
	}

	if err := r.artifacts.EnsureJob(job.ID); err != nil {
		return nil, err
	}
	for name, data := range p.Inputs {
		if _, err := r.artifacts.Put(job.ID, name, bytesReader(data)); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var tasks []*core.Task
	now := time.Now().UTC()

	switch p.Shape {
	case core.JobShapeSingle:
		inputNames := make([]string, 0, len(p.Inputs))
		for name := range p.Inputs {
			inputNames = append(inputNames, name)
		}
		task := &core.Task{
			ID:              uuid.New(),
			JobID:           job.ID,
			Type:            core.TaskTypeSingle,
			ShardIndex:      -1,
			PluginKind:      p.MapPlugin,
			Params:          p.Params,
			InputNames:      inputNames,
			ExpectedOutputs: mapDesc.ExpectedOutputs,
			Status:          core.TaskStatusPending,
			PendingSince:    now,
		}
		job.FinalOutput = ""
		tasks = append(tasks, task)

	case core.JobShapeMapReduce:
		inputArtifact, err := singleInputName(p.Inputs)
		if err != nil {
			return nil, err
		}
		raw := p.Inputs[inputArtifact]
		shardBytes := core.Shard(raw, p.Shards)

		for i, chunk := range shardBytes {
			shardName := core.ShardName(i)
			if _, err := r.artifacts.Put(job.ID, shardName, bytesReader(chunk)); err != nil {
				return nil, err
			}
			task := &core.Task{
				ID:              uuid.New(),
				JobID:           job.ID,
				Type:            core.TaskTypeMap,
				ShardIndex:      i,
				PluginKind:      p.MapPlugin,
				Params:          p.Params,
				InputNames:      []string{shardName},
				ExpectedOutputs: mapDesc.ExpectedOutputs,
				Status:          core.TaskStatusPending,
				PendingSince:    now,
			}
			tasks = append(tasks, task)
		}
		job.MapTotal = len(tasks)

	default:
		return nil, core.NewError(core.KindBadRequest, "unknown job shape "+string(p.Shape))
	}

	if err := r.jobs.CreateJob(job); err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if err := r.jobs.CreateTask(task); err != nil {
			return nil, err
		}
		if err := r.queue.Push(task); err != nil {
			return nil, err
		}
	}

	metrics.JobsSubmitted.WithLabelValues(string(job.Shape)).Inc()
	metrics.PendingQueueDepth.Set(float64(r.queue.Len()))
	r.logger.Info("job submitted", "job_id", job.ID.String(), "shape", string(job.Shape), "tasks", len(tasks))
	return job, nil
}

func singleInputName(inputs map[string][]byte) (string, error) {
	if len(inputs) != 1 {
		return "", core.NewError(core.KindBadRequest, "map_reduce job requires exactly one input artifact to shard")
	}
	for name := range inputs {
		return name, nil
	}
	return "", core.NewError(core.KindBadRequest, "no input provided")
}

func (r *Registry) GetJob(id uuid.UUID) (*core.Job, error) {
	return r.jobs.GetJob(id)
}

func (r *Registry) ListJobs(filter core.JobFilter) ([]*core.Job, error) {
	return r.jobs.ListJobs(filter)
}

func (r *Registry) ListTasks(jobID uuid.UUID) ([]core.TaskSummary, error) {
	tasks, err := r.jobs.ListTasksByJob(jobID)
	if err != nil {
		return nil, err
	}
	out := make([]core.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, core.TaskSummary{
			TaskID:     t.ID,
			Type:       t.Type,
			ShardIndex: t.ShardIndex,
			Status:     t.Status,
			RetryCount: t.RetryCount,
			LastError:  t.LastError,
		})
	}
	return out, nil
}

func (r *Registry) ListWorkers() ([]*core.Worker, error) {
	return r.workers.List()
}

// Artifacts exposes the backing Artifact Store for DownloadArtifact,
// which needs no Registry-side validation beyond the store's own
// JobUnknown/NotFound checks.
func (r *Registry) Artifacts() artifact.Store {
	return r.artifacts
}

// CancelJob marks the job Cancelled; the next heartbeat of any holder
// returns reassigned (spec §5).
func (r *Registry) CancelJob(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, err := r.jobs.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status == core.JobStatusSucceeded || job.Status == core.JobStatusFailed {
		return core.NewError(core.KindConflict, "job already terminal")
	}
	job.Status = core.JobStatusCancelled
	now := time.Now().UTC()
	job.CompletedAt = &now
	return r.jobs.UpdateJob(job)
}

// UploadArtifact validates the name against the worker's currently held
// task before finalizing, per spec §9's Open Question resolution: only
// expected_outputs may be accepted.
func (r *Registry) UploadArtifact(workerID string, jobID uuid.UUID, name string, data io.Reader) (artifact.Ref, error) {
	r.mu.Lock()
	w, err := r.workers.Get(workerID)
	if err != nil {
		r.mu.Unlock()
		return artifact.Ref{}, err
	}
	if w.HeldTaskID == nil {
		r.mu.Unlock()
		return artifact.Ref{}, core.NewError(core.KindConflict, "worker holds no task")
	}
	task, err := r.jobs.GetTask(*w.HeldTaskID)
	if err != nil {
		r.mu.Unlock()
		return artifact.Ref{}, err
	}
	if task.JobID != jobID {
		r.mu.Unlock()
		return artifact.Ref{}, core.NewError(core.KindBadRequest, "artifact job does not match held task")
	}
	allowed := false
	for _, expected := range task.ExpectedOutputs {
		if expected == name {
			allowed = true
			break
		}
	}
	storedName := task.ArtifactName(name)
	r.mu.Unlock()

	if !allowed {
		return artifact.Ref{}, core.NewError(core.KindBadRequest, "artifact name "+name+" is not a declared output")
	}
	return r.artifacts.Put(jobID, storedName, data)
}

func bytesReader(b []byte) io.Reader { return &byteReader{b: b} }

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
