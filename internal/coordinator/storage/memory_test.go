package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
)

func TestInMemoryJobStore_ListJobs_StatusFilter(t *testing.T) {
	store := NewInMemoryJobStore()

	pending := &core.Job{ID: uuid.New(), Status: core.JobStatusPending, SubmittedAt: time.Now()}
	running := &core.Job{ID: uuid.New(), Status: core.JobStatusRunning, SubmittedAt: time.Now()}
	require.NoError(t, store.CreateJob(pending))
	require.NoError(t, store.CreateJob(running))

	status := core.JobStatusPending
	jobs, err := store.ListJobs(core.JobFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pending.ID, jobs[0].ID)
}

func TestInMemoryJobStore_ListJobs_NoFilterReturnsAll(t *testing.T) {
	store := NewInMemoryJobStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateJob(&core.Job{ID: uuid.New(), SubmittedAt: time.Now()}))
	}

	jobs, err := store.ListJobs(core.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
}

func TestInMemoryJobStore_GetJob_Unknown(t *testing.T) {
	store := NewInMemoryJobStore()
	_, err := store.GetJob(uuid.New())
	require.Error(t, err)
	assert.Equal(t, core.KindJobUnknown, core.KindOf(err))
}

func TestInMemoryJobStore_ListTasksByJob_OrderedByTypeThenShard(t *testing.T) {
	store := NewInMemoryJobStore()
	jobID := uuid.New()

	reduce := &core.Task{ID: uuid.New(), JobID: jobID, Type: core.TaskTypeReduce, ShardIndex: -1}
	map1 := &core.Task{ID: uuid.New(), JobID: jobID, Type: core.TaskTypeMap, ShardIndex: 1}
	map0 := &core.Task{ID: uuid.New(), JobID: jobID, Type: core.TaskTypeMap, ShardIndex: 0}

	require.NoError(t, store.CreateTask(reduce))
	require.NoError(t, store.CreateTask(map1))
	require.NoError(t, store.CreateTask(map0))

	tasks, err := store.ListTasksByJob(jobID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, map0.ID, tasks[0].ID)
	assert.Equal(t, map1.ID, tasks[1].ID)
	assert.Equal(t, reduce.ID, tasks[2].ID)
}

func TestInMemoryJobStore_ListTasksByStatus(t *testing.T) {
	store := NewInMemoryJobStore()
	jobID := uuid.New()

	require.NoError(t, store.CreateTask(&core.Task{ID: uuid.New(), JobID: jobID, Status: core.TaskStatusAssigned}))
	require.NoError(t, store.CreateTask(&core.Task{ID: uuid.New(), JobID: jobID, Status: core.TaskStatusSucceeded}))

	assigned, err := store.ListTasksByStatus(core.TaskStatusAssigned)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)
}

func TestInMemoryWorkerStore_TouchAndGet(t *testing.T) {
	store := NewInMemoryWorkerStore()
	w := &core.Worker{ID: "worker-1", LastSeenAt: time.Now()}
	require.NoError(t, store.Touch(w))

	got, err := store.Get("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got.ID)
}

func TestInMemoryWorkerStore_ListStale(t *testing.T) {
	store := NewInMemoryWorkerStore()
	now := time.Now()

	require.NoError(t, store.Touch(&core.Worker{ID: "fresh", LastSeenAt: now}))
	require.NoError(t, store.Touch(&core.Worker{ID: "stale", LastSeenAt: now.Add(-time.Hour)}))

	stale, err := store.ListStale(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].ID)
}

func TestInMemoryWorkerStore_Delete(t *testing.T) {
	store := NewInMemoryWorkerStore()
	require.NoError(t, store.Touch(&core.Worker{ID: "worker-1", LastSeenAt: time.Now()}))
	require.NoError(t, store.Delete("worker-1"))

	_, err := store.Get("worker-1")
	require.Error(t, err)
}
