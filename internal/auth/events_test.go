package auth

import (
	"testing"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish(Event{Type: EventSignedIn})

	for i, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != EventSignedIn {
			t.Errorf("subscriber %d got %s", i, e.Type)
		}
		if e.At.IsZero() {
			t.Errorf("subscriber %d event has no timestamp", i)
		}
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Error("cancelled subscription should be closed")
	}

	b.Publish(Event{Type: EventSignedOut})
	if e := <-c; e.Type != EventSignedOut {
		t.Errorf("remaining subscriber got %s", e.Type)
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	for range subscriberBuffer + 5 {
		b.Publish(Event{Type: EventTokenRefreshed})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	b.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Close should yield a closed channel")
	}
}
