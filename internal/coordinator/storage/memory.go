// Package storage provides the coordinator's in-memory JobStore and
// WorkerStore (spec §2: "no persistence across coordinator restarts
// beyond the on-disk artifact tree").
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
)

// InMemoryJobStore holds jobs and tasks in two flat tables keyed by id
// (spec §9 "Cyclic references": entities hold ids, not back-pointers).
type InMemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*core.Job
	tasks map[uuid.UUID]*core.Task
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs:  make(map[uuid.UUID]*core.Job),
		tasks: make(map[uuid.UUID]*core.Task),
	}
}

func (s *InMemoryJobStore) CreateJob(job *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryJobStore) UpdateJob(job *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryJobStore) GetJob(id uuid.UUID) (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, core.NewError(core.KindJobUnknown, "job "+id.String()+" does not exist")
	}
	return job, nil
}

func (s *InMemoryJobStore) ListJobs(filter core.JobFilter) ([]*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *InMemoryJobStore) CreateTask(task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *InMemoryJobStore) UpdateTask(task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *InMemoryJobStore) GetTask(id uuid.UUID) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, core.NewError(core.KindNotFound, "task "+id.String()+" does not exist")
	}
	return task, nil
}

func (s *InMemoryJobStore) ListTasksByJob(jobID uuid.UUID) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Task
	for _, task := range s.tasks {
		if task.JobID == jobID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ShardIndex < out[j].ShardIndex
	})
	return out, nil
}

func (s *InMemoryJobStore) ListTasksByStatus(status core.TaskStatus) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Task
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out, nil
}

// InMemoryWorkerStore tracks worker liveness implicitly: there is no
// explicit registration call, only Touch on every poll/heartbeat.
type InMemoryWorkerStore struct {
	mu      sync.RWMutex
	workers map[string]*core.Worker
}

func NewInMemoryWorkerStore() *InMemoryWorkerStore {
	return &InMemoryWorkerStore{workers: make(map[string]*core.Worker)}
}

func (s *InMemoryWorkerStore) Touch(worker *core.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[worker.ID] = worker
	return nil
}

func (s *InMemoryWorkerStore) Get(id string) (*core.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, core.NewError(core.KindNotFound, "worker "+id+" does not exist")
	}
	return w, nil
}

func (s *InMemoryWorkerStore) List() ([]*core.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryWorkerStore) ListStale(threshold time.Time) ([]*core.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Worker
	for _, w := range s.workers {
		if w.LastSeenAt.Before(threshold) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *InMemoryWorkerStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
	return nil
}
