package service

import (
	"log/slog"
	"math"
	"sync"

	"github.com/raphaelgruber/kgforge/internal/models"
)

// Event types pushed to task subscribers.
const (
	EventProgress  = "progress"
	EventCompleted = "task_completed"
	EventCancelled = "task_cancelled"
)

// Event is one message on a task's progress channel.
type Event struct {
	Type   string     `json:"type"`
	TaskID string     `json:"task_id"`
	Data   *EventData `json:"data,omitempty"`
}

// EventData carries the task state at the time of the event.
type EventData struct {
	Progress  float64           `json:"progress"`
	Status    models.TaskStatus `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
	FileNames []models.FileInfo `json:"file_names,omitempty"`
}

// ProgressEvent builds the progress event for a task snapshot.
func ProgressEvent(t *models.Task) Event {
	return Event{
		Type:   EventProgress,
		TaskID: t.ID,
		Data: &EventData{
			Progress:  math.Round(t.Progress*100) / 100,
			Status:    t.Status,
			Message:   t.CurrentStep,
			FileNames: t.FileSnapshot(),
		},
	}
}

// DefaultSubscriberBuffer is the channel capacity of a new subscription.
const DefaultSubscriberBuffer = 32

// Notifier fans task events out to per-task subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the event.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// NewNotifier creates a notifier whose subscriptions buffer up to buffer
// events. buffer <= 0 selects DefaultSubscriberBuffer.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Notifier{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription receives the events of one task until closed.
type Subscription struct {
	TaskID string

	ch   chan Event
	n    *Notifier
	once sync.Once
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes and closes the event channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		if set, ok := s.n.subs[s.TaskID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.n.subs, s.TaskID)
			}
		}
		close(s.ch)
	})
}

// Subscribe registers a subscriber for taskID.
func (n *Notifier) Subscribe(taskID string) *Subscription {
	s := &Subscription{
		TaskID: taskID,
		ch:     make(chan Event, n.buffer),
		n:      n,
	}
	n.mu.Lock()
	set, ok := n.subs[taskID]
	if !ok {
		set = make(map[*Subscription]struct{})
		n.subs[taskID] = set
	}
	set[s] = struct{}{}
	n.mu.Unlock()

	slog.Debug("subscribed to task", "task_id", taskID)
	return s
}

// Publish delivers ev to every subscriber of ev.TaskID.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for s := range n.subs[ev.TaskID] {
		select {
		case s.ch <- ev:
		default:
			slog.Debug("subscriber buffer full, dropping event", "task_id", ev.TaskID, "type", ev.Type)
		}
	}
}

// Subscribers returns the number of live subscriptions for taskID.
func (n *Notifier) Subscribers(taskID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[taskID])
}
