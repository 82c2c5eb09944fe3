package task

import (
	"sync"
	"time"

	"cineshorts/scene"

	"github.com/lithammer/shortuuid/v4"
)

// Registry is the process-wide table of tasks. Each task has a single writer
// (its job goroutine) and any number of readers; Get hands out consistent
// snapshot copies so readers never hold a lock across their own awaits.
// Absence of an id is a normal state, never an error: entries self-expire a
// fixed retention after reaching a terminal status.
type Registry struct {
	tasks     sync.Map // id -> *entry
	retention time.Duration
}

type entry struct {
	mu sync.Mutex
	t  Task
}

func NewRegistry(retention time.Duration) *Registry {
	return &Registry{retention: retention}
}

// Create registers a fresh task in its initial state and returns a snapshot.
func (r *Registry) Create() Task {
	t := Task{
		ID:      shortuuid.New(),
		Status:  StatusStarting,
		Message: "queued",
	}
	r.tasks.Store(t.ID, &entry{t: t})
	return t
}

// CreateCompleted registers an already-terminal task carrying a cached
// result, so a cache hit is indistinguishable from a finished job. The entry
// is scheduled for expiry immediately.
func (r *Registry) CreateCompleted(res *scene.Result) Task {
	t := Task{
		ID:       shortuuid.New(),
		Status:   StatusCompleted,
		Progress: 100,
		Message:  "loaded from cache",
		Result:   res,
	}
	r.tasks.Store(t.ID, &entry{t: t})
	r.ScheduleExpiry(t.ID)
	return t
}

// Get returns a snapshot copy of the task, or false if the id is unknown or
// already expired.
func (r *Registry) Get(id string) (Task, bool) {
	val, ok := r.tasks.Load(id)
	if !ok {
		return Task{}, false
	}
	e := val.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t, true
}

// Mutate applies fn to the task under its lock. Returns false for unknown ids.
func (r *Registry) Mutate(id string, fn func(*Task)) bool {
	val, ok := r.tasks.Load(id)
	if !ok {
		return false
	}
	e := val.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.t)
	return true
}

// Expire removes the entry. Expired ids are never resurrected.
func (r *Registry) Expire(id string) {
	r.tasks.Delete(id)
}

// ScheduleExpiry arranges removal one retention window from now. Called once
// when a task reaches a terminal state.
func (r *Registry) ScheduleExpiry(id string) {
	time.AfterFunc(r.retention, func() {
		r.Expire(id)
	})
}
