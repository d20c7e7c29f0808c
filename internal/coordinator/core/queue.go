package core

import (
	"container/heap"
	"errors"
	"sync"
)

// ErrQueueEmpty is returned when Pop() is called on an empty queue.
var ErrQueueEmpty = errors.New("priority queue is empty")

// PendingQueue is a thread-safe min-heap over Pending tasks, ordered by
// the Dispatcher's selection policy (spec §4.4): oldest PendingSince
// first, ties broken by ascending TaskID. It is coordinator-wide, not
// per-job — map and reduce tasks for the same job are never pending
// simultaneously, since a reduce task is only created once every map
// task has succeeded (spec §4.2).
type PendingQueue interface {
	Push(task *Task) error
	Pop() (*Task, error)
	Len() int
}

type heapPendingQueue struct {
	pq priorityQueue
	mu sync.Mutex
}

func NewPendingQueue() PendingQueue {
	pq := make(priorityQueue, 0)
	heap.Init(&pq)
	return &heapPendingQueue{pq: pq}
}

func (q *heapPendingQueue) Push(task *Task) error {
	if task == nil {
		return errors.New("cannot push nil task")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pq, &item{task: task})
	return nil
}

func (q *heapPendingQueue) Pop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pq.Len() == 0 {
		return nil, ErrQueueEmpty
	}
	it := heap.Pop(&q.pq).(*item)
	return it.task, nil
}

func (q *heapPendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

// item wraps a Task with its index in the heap.
type item struct {
	task  *Task
	index int // required by heap.Interface
}

// priorityQueue satisfies heap.Interface, ordering by (PendingSince, ID).
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	ti, tj := pq[i].task, pq[j].task
	if !ti.PendingSince.Equal(tj.PendingSince) {
		return ti.PendingSince.Before(tj.PendingSince)
	}
	return ti.ID.String() < tj.ID.String()
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	it := x.(*item)
	it.index = n
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[0 : n-1]
	return it
}
