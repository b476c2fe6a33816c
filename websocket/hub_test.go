package websocket

import (
	"encoding/json"
	"testing"

	"github.com/KiiTuNp/SUPERvote/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishTestEvent(h *Hub, roomID, eventType string) {
	h.Publish(roomID, &models.Event{Type: eventType, RoomID: roomID})
}

func receiveType(t *testing.T, sub *Subscription) string {
	select {
	case payload, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		var event models.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event.Type
	default:
		t.Fatal("no event buffered")
		return ""
	}
}

func TestHubPublishReachesAllRoomSubscribers(t *testing.T) {
	hub := NewHub()
	sub1 := hub.Subscribe("ABC123")
	sub2 := hub.Subscribe("ABC123")
	other := hub.Subscribe("XYZ789")
	defer hub.Unsubscribe(sub1)
	defer hub.Unsubscribe(sub2)
	defer hub.Unsubscribe(other)

	publishTestEvent(hub, "ABC123", "vote_update")

	assert.Equal(t, "vote_update", receiveType(t, sub1))
	assert.Equal(t, "vote_update", receiveType(t, sub2))

	select {
	case <-other.C():
		t.Fatal("event leaked into another room")
	default:
	}
}

func TestHubPreservesPublishOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("ABC123")
	defer hub.Unsubscribe(sub)

	publishTestEvent(hub, "ABC123", "new_poll")
	publishTestEvent(hub, "ABC123", "poll_started")
	publishTestEvent(hub, "ABC123", "vote_update")
	publishTestEvent(hub, "ABC123", "poll_stopped")

	assert.Equal(t, "new_poll", receiveType(t, sub))
	assert.Equal(t, "poll_started", receiveType(t, sub))
	assert.Equal(t, "vote_update", receiveType(t, sub))
	assert.Equal(t, "poll_stopped", receiveType(t, sub))
}

func TestHubPublishRaw(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("ABC123")
	defer hub.Unsubscribe(sub)

	raw := []byte(`{"type":"vote_update","room_id":"ABC123"}`)
	hub.PublishRaw("ABC123", raw)

	select {
	case payload := <-sub.C():
		assert.Equal(t, raw, payload, "relayed payloads are delivered verbatim")
	default:
		t.Fatal("no event buffered")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe("ABC123")

	// Fill the send buffer without draining, then one more
	for i := 0; i <= subscriptionBuffer; i++ {
		publishTestEvent(hub, "ABC123", "vote_update")
	}

	assert.Equal(t, 0, hub.SubscriberCount("ABC123"), "slow subscriber gets dropped")

	// Drain what was buffered; the channel must end up closed
	received := 0
	for range slow.C() {
		received++
	}
	assert.Equal(t, subscriptionBuffer, received)
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("ABC123")
	require.Equal(t, 1, hub.SubscriberCount("ABC123"))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount("ABC123"))

	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after unsubscribe")

	// Publishing to an empty room is a no-op
	publishTestEvent(hub, "ABC123", "vote_update")
}

func TestHubCloseRoom(t *testing.T) {
	hub := NewHub()
	sub1 := hub.Subscribe("ABC123")
	sub2 := hub.Subscribe("ABC123")
	other := hub.Subscribe("XYZ789")
	defer hub.Unsubscribe(other)

	hub.CloseRoom("ABC123")

	assert.Equal(t, 0, hub.SubscriberCount("ABC123"))
	assert.Equal(t, 1, hub.SubscriberCount("XYZ789"))

	_, ok := <-sub1.C()
	assert.False(t, ok)
	_, ok = <-sub2.C()
	assert.False(t, ok)
}
