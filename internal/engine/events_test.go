package engine_test

import (
	"testing"
	"time"

	"github.com/seantiz/conductor/internal/engine"
)

func event(id string, typ engine.EventType) engine.Event {
	return engine.Event{TaskID: id, Type: typ, Time: time.Now()}
}

func TestEventBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("t1")
	defer unsub()

	types := []engine.EventType{engine.EventSubmitted, engine.EventStarted, engine.EventEnded}
	for _, typ := range types {
		b.Publish(event("t1", typ))
	}
	b.Close("t1")

	var got []engine.EventType
	for e := range ch {
		got = append(got, e.Type)
	}

	if len(got) != len(types) {
		t.Fatalf("got %d events, want %d", len(got), len(types))
	}
	for i, typ := range got {
		if typ != types[i] {
			t.Errorf("event[%d] = %q, want %q", i, typ, types[i])
		}
	}
}

func TestEventBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewEventBroker()
	ch1, unsub1 := b.Subscribe("t1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("t1")
	defer unsub2()

	b.Publish(event("t1", engine.EventStarted))
	b.Close("t1")

	for i, ch := range []<-chan engine.Event{ch1, ch2} {
		var n int
		for range ch {
			n++
		}
		if n != 1 {
			t.Errorf("subscriber %d got %d events, want 1", i+1, n)
		}
	}
}

func TestEventBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewEventBroker()
	b.Publish(event("t1", engine.EventEnded))
	b.Close("t1")

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestEventBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("t1")
	unsub()

	b.Publish(event("t1", engine.EventStarted))
	b.Close("t1")

	select {
	case e, ok := <-ch:
		if ok {
			t.Errorf("got unexpected event %q after unsubscribe", e.Type)
		}
	default:
	}
}

func TestEventBrokerForgetClosesSubscribers(t *testing.T) {
	b := engine.NewEventBroker()
	ch, _ := b.Subscribe("t1")
	b.Forget("t1")

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Forget")
	}

	// A forgotten topic starts fresh.
	ch2, unsub := b.Subscribe("t1")
	defer unsub()
	b.Publish(event("t1", engine.EventStarted))
	if e := <-ch2; e.Type != engine.EventStarted {
		t.Errorf("event after Forget = %q", e.Type)
	}
}

func TestEventBrokerPublishToUnknownTaskIsNoop(t *testing.T) {
	b := engine.NewEventBroker()
	b.Publish(event("nonexistent", engine.EventStarted))
	b.Close("nonexistent")
	b.Forget("nonexistent")
}
