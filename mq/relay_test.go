package mq

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend keeps published envelopes in memory and lets tests feed
// the consumer directly.
type fakeBackend struct {
	mu        sync.Mutex
	published [][]byte
	handle    func(data []byte)
}

func (f *fakeBackend) Publish(roomID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data)
	return nil
}

func (f *fakeBackend) StartConsumer(handle func(data []byte)) error {
	f.handle = handle
	return nil
}

func (f *fakeBackend) Close() {}

func newTestRelay(deliver DeliverFunc) (*EventRelay, *fakeBackend) {
	backend := &fakeBackend{}
	relay := &EventRelay{
		instanceID: "instance-a",
		backend:    backend,
		deliver:    deliver,
		seen:       make(map[string]time.Time),
	}
	_ = backend.StartConsumer(relay.consume)
	return relay, backend
}

func envelope(t *testing.T, messageID, instanceID, roomID, payload string) []byte {
	data, err := json.Marshal(RoomEventMessage{
		MessageID:  messageID,
		InstanceID: instanceID,
		RoomID:     roomID,
		Payload:    json.RawMessage(payload),
		Timestamp:  time.Now().Unix(),
	})
	require.NoError(t, err)
	return data
}

func TestRelayEventWrapsPayload(t *testing.T) {
	relay, backend := newTestRelay(func(roomID string, payload []byte) {})

	payload := []byte(`{"type":"vote_update","room_id":"ABC123"}`)
	require.NoError(t, relay.RelayEvent("ABC123", payload))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.published, 1)

	var msg RoomEventMessage
	require.NoError(t, json.Unmarshal(backend.published[0], &msg))
	assert.Equal(t, "instance-a", msg.InstanceID)
	assert.Equal(t, "ABC123", msg.RoomID)
	assert.NotEmpty(t, msg.MessageID)
	assert.JSONEq(t, string(payload), string(msg.Payload))
}

func TestRelaySkipsOwnMessages(t *testing.T) {
	delivered := 0
	relay, backend := newTestRelay(func(roomID string, payload []byte) {
		delivered++
	})

	// A message published by this very instance comes back from the broker
	require.NoError(t, relay.RelayEvent("ABC123", []byte(`{"type":"vote_update"}`)))
	backend.handle(backend.published[0])

	assert.Equal(t, 0, delivered, "own messages are already broadcast locally")
}

func TestRelayDeliversForeignMessages(t *testing.T) {
	var gotRoom string
	var gotPayload []byte
	_, backend := newTestRelay(func(roomID string, payload []byte) {
		gotRoom = roomID
		gotPayload = payload
	})

	backend.handle(envelope(t, "msg-1", "instance-b", "ABC123", `{"type":"vote_update"}`))

	assert.Equal(t, "ABC123", gotRoom)
	assert.JSONEq(t, `{"type":"vote_update"}`, string(gotPayload))
}

func TestRelayDeduplicatesByMessageID(t *testing.T) {
	delivered := 0
	_, backend := newTestRelay(func(roomID string, payload []byte) {
		delivered++
	})

	msg := envelope(t, "msg-1", "instance-b", "ABC123", `{"type":"vote_update"}`)
	backend.handle(msg)
	backend.handle(msg)
	backend.handle(envelope(t, "msg-2", "instance-b", "ABC123", `{"type":"vote_update"}`))

	assert.Equal(t, 2, delivered, "redelivered envelopes are dropped")
}

func TestRelaySeenRetentionExpires(t *testing.T) {
	relay, _ := newTestRelay(func(roomID string, payload []byte) {})

	relay.seenMu.Lock()
	relay.seen["stale"] = time.Now().Add(-seenRetention - time.Minute)
	relay.seenMu.Unlock()

	// Any idempotency check sweeps out expired entries
	assert.False(t, relay.alreadySeen("fresh"))

	relay.seenMu.Lock()
	_, staleKept := relay.seen["stale"]
	relay.seenMu.Unlock()
	assert.False(t, staleKept)

	assert.True(t, relay.alreadySeen("fresh"))
}

func TestRelayIgnoresMalformedEnvelope(t *testing.T) {
	delivered := 0
	_, backend := newTestRelay(func(roomID string, payload []byte) {
		delivered++
	})

	backend.handle([]byte("not json"))
	assert.Equal(t, 0, delivered)
}

func TestRelayCloseNilSafe(t *testing.T) {
	var relay *EventRelay
	relay.Close()

	relay = &EventRelay{}
	relay.Close()
}
