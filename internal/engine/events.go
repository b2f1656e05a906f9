package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// EventType names a task lifecycle transition.
type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventStarted   EventType = "started"
	EventEnded     EventType = "ended"
)

// Event is published on each lifecycle transition of a task.
type Event struct {
	TaskID string    `json:"task_id"`
	Type   EventType `json:"type"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// EventBroker fans out lifecycle events per task to subscribers. It is safe
// for concurrent use.
//
// Ended tasks keep a closed marker so that late subscribers receive a closed
// channel instead of blocking forever. Markers are dropped when the task is
// forgotten by the manager.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel of events for the given task and an unsubscribe
// function. If the task has already ended, the channel is closed immediately.
func (b *EventBroker) Subscribe(taskID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[taskID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of its task. Events are dropped
// for subscribers whose buffers are full.
func (b *EventBroker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[e.TaskID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close signals that no more events will be published for the task.
func (b *EventBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		b.topics[taskID] = &eventTopic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Forget drops all state for the task, closing any remaining subscribers.
func (b *EventBroker) Forget(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		close(ch)
	}
	delete(b.topics, taskID)
}
