package core

import (
	"time"

	"github.com/google/uuid"
)

// JobStore is the Registry's backing table for jobs and tasks. All
// mutations are expected to be serialized by the caller (the Registry's
// single critical section); implementations need only be safe for
// concurrent reads.
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id uuid.UUID) (*Job, error)
	ListJobs(filter JobFilter) ([]*Job, error)
	UpdateJob(job *Job) error

	CreateTask(task *Task) error
	GetTask(id uuid.UUID) (*Task, error)
	ListTasksByJob(jobID uuid.UUID) ([]*Task, error)
	ListTasksByStatus(status TaskStatus) ([]*Task, error)
	UpdateTask(task *Task) error
}

// WorkerStore tracks implicit worker liveness (spec §3: "implicit — a
// worker exists between its first poll and its heartbeat-expiry").
type WorkerStore interface {
	Touch(worker *Worker) error
	Get(id string) (*Worker, error)
	List() ([]*Worker, error)
	ListStale(threshold time.Time) ([]*Worker, error)
	Delete(id string) error
}
