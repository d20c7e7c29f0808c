package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobShape selects how a job is decomposed into tasks.
type JobShape string

const (
	JobShapeSingle    JobShape = "single"
	JobShapeMapReduce JobShape = "map_reduce"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Job is a client submission decomposed into one or more Tasks.
type Job struct {
	ID    uuid.UUID
	Shape JobShape

	MapPlugin    string
	ReducePlugin string // only for JobShapeMapReduce
	Shards       int    // requested N, only for JobShapeMapReduce

	Params map[string]string

	Status JobStatus

	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// FinalOutput is the name of the artifact clients should download once
	// the job succeeds: the reduce task's output for map_reduce jobs, the
	// single task's output for single jobs.
	FinalOutput string

	LastError *TaskError

	// MapTotal/MapCompleted track map-phase completion without rescanning
	// every task on each report (see SPEC_FULL.md "SUPPLEMENTED FEATURES").
	MapTotal     int
	MapCompleted int
}

type TaskType string

const (
	TaskTypeSingle TaskType = "single"
	TaskTypeMap    TaskType = "map"
	TaskTypeReduce TaskType = "reduce"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusAssigned  TaskStatus = "ASSIGNED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// Lease records which worker currently holds a task and until when.
type Lease struct {
	WorkerID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TaskError struct {
	Kind      string
	Detail    string
	Timestamp time.Time
}

// Task is a unit of work assignable to one worker at a time.
type Task struct {
	ID    uuid.UUID
	JobID uuid.UUID

	Type       TaskType
	ShardIndex int // 0..N-1 for map tasks, -1 otherwise

	PluginKind string
	Params     map[string]string

	// InputNames are artifact names (within JobID) the assigned worker
	// must download before invoking the plugin. ExpectedOutputs are the
	// names the plugin descriptor declares it will produce; the worker
	// must upload exactly these names back as task output artifacts.
	InputNames      []string
	ExpectedOutputs []string

	Status TaskStatus
	Lease  *Lease

	// PendingSince is the FIFO ordering key for dispatch: the moment the
	// task most recently became eligible for claim.
	PendingSince time.Time

	RetryCount int
	LastError  *TaskError

	// CooldownWorker/CooldownUntil implement "don't immediately redispatch
	// to the worker that just failed this task" (spec §4.4). Zero value
	// means no active cooldown.
	CooldownWorker string
	CooldownUntil  time.Time

	StartedAt *time.Time
	EndedAt   *time.Time
}

// Capabilities is an optional resource profile carried on a Worker and
// returned by ListWorkers. The Dispatcher does not schedule on it. No
// request path sets it: a worker is recorded from its ID alone, so these
// fields stay at their zero values.
type Capabilities struct {
	CPUs   int
	RAMGB  float64
	GPUs   int
}

// Worker is implicit: it exists between its first poll and the moment
// its heartbeat goes silent for longer than WORKER_TTL.
type Worker struct {
	ID            string
	Capabilities  Capabilities
	LastSeenAt    time.Time
	HeldTaskID    *uuid.UUID
}

// ArtifactName maps a plugin-declared output name to the name it is
// stored under in the job's artifact directory. Map tasks share their
// plugin's output name (e.g. "sorted.txt") across every shard, so it is
// qualified by shard index to keep the store's flat per-job namespace
// collision-free; single and reduce tasks produce the job's one
// instance of each name, so no qualification is needed.
func (t *Task) ArtifactName(outputName string) string {
	if t.Type == TaskTypeMap {
		return fmt.Sprintf("map-%04d-%s", t.ShardIndex, outputName)
	}
	return outputName
}

// JobFilter narrows ListJobs results. A nil Status matches every job.
type JobFilter struct {
	Status *JobStatus
}

// TaskSummary is the read-only view of a task returned by GetJob.
type TaskSummary struct {
	TaskID     uuid.UUID
	Type       TaskType
	ShardIndex int
	Status     TaskStatus
	RetryCount int
	LastError  *TaskError
}
