package eventhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscribersInOrder(t *testing.T) {
	h := New()
	var received []EventKind
	h.Subscribe(SubscriberFunc(func(e Event) {
		received = append(received, e.Kind)
	}))

	h.Publish(Event{Kind: EventConnect})
	h.Publish(Event{Kind: EventPositionUpdate})
	h.Publish(Event{Kind: EventDisconnect})

	assert.Equal(t, []EventKind{EventConnect, EventPositionUpdate, EventDisconnect}, received)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	count := 0
	sub := h.Subscribe(SubscriberFunc(func(Event) { count++ }))

	h.Publish(Event{Kind: EventConnect})
	h.Unsubscribe(sub)
	h.Publish(Event{Kind: EventConnect})

	assert.Equal(t, 1, count)
}
