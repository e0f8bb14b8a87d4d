package events

import (
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBus()
	id1, ch1 := b.Subscribe(4)
	id2, ch2 := b.Subscribe(4)
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish(TypeLog, "cycle started")

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != TypeLog || evt.Payload != "cycle started" {
				t.Errorf("subscriber %d got %+v", i, evt)
			}
			if evt.Time.IsZero() {
				t.Errorf("subscriber %d event missing timestamp", i)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.Publish(TypePrices, 1)
	b.Publish(TypePrices, 2) // buffer full, must not block

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got %v, want the first event", evt.Payload)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %+v", evt)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(TypeLog, "after close")
}
