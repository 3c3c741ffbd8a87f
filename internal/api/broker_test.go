package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := "alerts"
	ch := b.Subscribe(topic)

	evt := Event{Type: "ENGINE_TEMP", Data: map[string]any{"x": 1}}
	b.Publish(topic, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(topic, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("alerts")
	defer b.Unsubscribe("alerts", ch)
	// fill past the buffer; publish must not block
	for i := 0; i < 20; i++ {
		b.Publish("alerts", Event{Type: "FUEL_LOW"})
	}
}
