// Package service hosts the knowledge graph construction workflow: the task
// registry, progress notifications, the builder that schedules pipeline runs
// and prompt template management.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/store"
)

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when the state machine forbids a move.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Messages written on terminal transitions.
const (
	MsgInterrupted = "interrupted by restart"
	MsgCancelled   = "cancelled by user"
)

type entry struct {
	mu   sync.Mutex
	task *models.Task
}

// Registry owns task state. Every transition is persisted through the task
// store and published on the notifier. Tasks are keyed by id; each task has
// its own lock so slow persistence of one task never stalls another.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*entry
	store    store.TaskStore
	notifier *Notifier
	now      func() time.Time
}

// NewRegistry creates a registry. notifier may be nil.
func NewRegistry(st store.TaskStore, notifier *Notifier) *Registry {
	return &Registry{
		tasks:    make(map[string]*entry),
		store:    st,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores task as pending.
func (r *Registry) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	now := r.now()
	t := task.Clone()
	t.Status = models.TaskStatusPending
	t.Progress = 0
	t.TotalFiles = len(t.Files)
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := r.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	r.mu.Lock()
	r.tasks[t.ID] = &entry{task: t}
	r.mu.Unlock()

	slog.Info("task created", "task_id", t.ID, "user_id", t.UserID, "space", t.GraphSpace, "files", len(t.Files))
	snap := t.Clone()
	r.publish(ProgressEvent(snap))
	return snap, nil
}

// Get returns a copy of the task.
func (r *Registry) Get(ctx context.Context, id string) (*models.Task, error) {
	e, err := r.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// List returns one page of tasks from the store, newest first.
func (r *Registry) List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error) {
	tasks, total, err := r.store.ListTasks(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	// live tasks may be ahead of their last persisted write
	r.mu.RLock()
	for i, t := range tasks {
		if e, ok := r.tasks[t.ID]; ok {
			e.mu.Lock()
			tasks[i] = e.task.Clone()
			e.mu.Unlock()
		}
	}
	r.mu.RUnlock()
	return tasks, total, nil
}

// Start moves a pending task to running.
func (r *Registry) Start(ctx context.Context, id string) error {
	_, err := r.transition(ctx, id, models.TaskStatusRunning, func(t *models.Task) {
		t.CurrentStep = "starting"
		for i := range t.Files {
			t.Files[i].Status = "processing"
		}
	})
	return err
}

// Progress records a milestone of a running task. Progress never moves
// backwards; a lower value only updates the step text. Updates for tasks that
// are not running are ignored.
func (r *Registry) Progress(ctx context.Context, id string, progress float64, step string) {
	e, err := r.entry(ctx, id)
	if err != nil {
		slog.Warn("progress for unknown task", "task_id", id, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task.Status != models.TaskStatusRunning {
		slog.Debug("ignoring progress for task that is not running", "task_id", id, "status", e.task.Status)
		return
	}
	e.task.Progress = max(e.task.Progress, progress)
	e.task.CurrentStep = step
	e.task.UpdatedAt = r.now()
	for i := range e.task.Files {
		e.task.Files[i].Progress = e.task.Progress / 100
	}
	if err := r.store.UpdateTask(ctx, e.task); err != nil {
		slog.Warn("failed to persist task progress", "task_id", id, "error", err)
	}
	r.publish(ProgressEvent(e.task.Clone()))
}

// Complete marks a running task completed with its result counts.
func (r *Registry) Complete(ctx context.Context, id string, triplets, vectors int) (*models.Task, error) {
	t, err := r.transition(ctx, id, models.TaskStatusCompleted, func(t *models.Task) {
		t.Progress = 100
		t.CurrentStep = fmt.Sprintf("processing complete: %d triples, %d vector chunks", triplets, vectors)
		t.RelationsCount = triplets
		t.EntitiesCount = vectors
		at := r.now()
		t.CompletedAt = &at
		for i := range t.Files {
			t.Files[i].Status = string(models.TaskStatusCompleted)
			t.Files[i].Progress = 1
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Info("task completed", "task_id", id, "triplets", triplets, "vectors", vectors)
	r.publish(Event{Type: EventCompleted, TaskID: id})
	return t, nil
}

// Fail marks a running task failed. Progress is left where it was.
func (r *Registry) Fail(ctx context.Context, id string, cause error) (*models.Task, error) {
	t, err := r.transition(ctx, id, models.TaskStatusFailed, func(t *models.Task) {
		t.ErrorMessage = cause.Error()
		t.CurrentStep = "processing failed: " + cause.Error()
		at := r.now()
		t.CompletedAt = &at
		for i := range t.Files {
			t.Files[i].Status = string(models.TaskStatusFailed)
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Error("task failed", "task_id", id, "error", cause)
	return t, nil
}

// Cancel marks a running task cancelled. The run itself stops at its next
// stage boundary.
func (r *Registry) Cancel(ctx context.Context, id string) (*models.Task, error) {
	t, err := r.transition(ctx, id, models.TaskStatusCancelled, func(t *models.Task) {
		t.CurrentStep = MsgCancelled
		at := r.now()
		t.CompletedAt = &at
	})
	if err != nil {
		return nil, err
	}
	slog.Info("task cancelled", "task_id", id)
	r.publish(Event{Type: EventCancelled, TaskID: id})
	return t, nil
}

// Cancelled reports whether the task is currently cancelled. Finished tasks
// are no longer held in memory, so a miss falls back to the store.
func (r *Registry) Cancelled(id string) bool {
	e, err := r.entry(context.Background(), id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Status == models.TaskStatusCancelled
}

// live returns the number of tasks held in memory.
func (r *Registry) live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Delete removes the task from the store and the registry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
	slog.Info("task deleted", "task_id", id)
	return nil
}

// Recover fails every task a previous process left pending or running.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	tasks, err := r.store.ListUnfinishedTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished tasks: %w", err)
	}
	cause := errors.New(MsgInterrupted)
	n := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusPending {
			if err := r.Start(ctx, t.ID); err != nil {
				slog.Warn("failed to recover task", "task_id", t.ID, "error", err)
				continue
			}
		}
		if _, err := r.Fail(ctx, t.ID, cause); err != nil {
			slog.Warn("failed to recover task", "task_id", t.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		slog.Info("marked interrupted tasks failed", "count", n)
	}
	return n, nil
}

// transition applies next to the task if the state machine allows it. A task
// that reaches a terminal state is dropped from memory once persisted.
func (r *Registry) transition(ctx context.Context, id string, next models.TaskStatus, mutate func(*models.Task)) (*models.Task, error) {
	e, err := r.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := r.apply(ctx, e, next, mutate)
	if err != nil {
		return nil, err
	}
	if next.Terminal() {
		r.evict(id, e)
	}
	return snap, nil
}

func (r *Registry) apply(ctx context.Context, e *entry, next models.TaskStatus, mutate func(*models.Task)) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.task.Status
	if !prev.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	t := e.task.Clone()
	t.Status = next
	mutate(t)
	t.UpdatedAt = r.now()
	if err := r.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("persist task %s: %w", t.ID, err)
	}
	e.task = t

	slog.Debug("task transition", "task_id", t.ID, "from", prev, "to", next)
	snap := t.Clone()
	r.publish(ProgressEvent(snap))
	return snap, nil
}

// evict drops id from memory unless the entry was replaced meanwhile.
func (r *Registry) evict(id string, e *entry) {
	r.mu.Lock()
	if r.tasks[id] == e {
		delete(r.tasks, id)
	}
	r.mu.Unlock()
}

// entry returns the live entry for id, loading it from the store on a miss.
func (r *Registry) entry(ctx context.Context, id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.tasks[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	t, err := r.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	if t.Status.Terminal() {
		return &entry{task: t}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tasks[id]; ok {
		return e, nil
	}
	e = &entry{task: t}
	r.tasks[id] = e
	return e, nil
}

func (r *Registry) publish(ev Event) {
	if r.notifier != nil {
		r.notifier.Publish(ev)
	}
}
