package extractor

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/distill/pkg/fidelity"
	"github.com/jmylchreest/distill/pkg/news"
)

// Task is one unit of extraction work: a set of items to cover.
type Task struct {
	Label  string
	Items  []news.SourceItem
	Depth  int
	Parent string
}

// TaskQueue is a FIFO of tasks that refuses an item set it has already
// seen.
type TaskQueue struct {
	mu    sync.Mutex
	queue []Task
	seen  map[string]bool
	added int
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{seen: make(map[string]bool)}
}

// Add enqueues t unless a task with the same item set was queued before.
func (q *TaskQueue) Add(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := taskKey(t.Items)
	if key == "" || q.seen[key] {
		return false
	}
	q.seen[key] = true
	q.queue = append(q.queue, t)
	q.added++
	return true
}

// Pop removes and returns the next task.
func (q *TaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return Task{}, false
	}
	t := q.queue[0]
	q.queue = q.queue[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Added returns how many tasks were ever accepted.
func (q *TaskQueue) Added() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.added
}

// taskKey identifies an item set independent of order.
func taskKey(items []news.SourceItem) string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		k := fidelity.Normalize(it.Title)
		if k == "" {
			k = it.Title
		}
		keys = append(keys, k+"\x00"+strconv.Itoa(len(it.Body)))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x01")
}
