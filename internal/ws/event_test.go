package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The client contract pins these field names; renaming them breaks deployed
// frontends.
func TestNewMessagePayloadWireFormat(t *testing.T) {
	p := NewMessagePayload{
		ID:        "m1",
		Sender:    "u1",
		Chat:      "c1",
		Message:   "hi",
		ReadBy:    []string{"u1"},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "m1", m["_id"])
	assert.Equal(t, "c1", m["chat"])
	assert.Contains(t, m, "read_by")
	assert.Contains(t, m, "createdAt")
}

func TestMessagesReadPayloadWireFormat(t *testing.T) {
	data, err := json.Marshal(MessagesReadPayload{ChatID: "c1", ReaderID: "u2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chatId":"c1","readerId":"u2"}`, string(data))
}

func TestIncomingEventDecode(t *testing.T) {
	raw := `{"id":"r1","type":"sendMessage","receiver":"u2","content":"hello"}`
	var ev IncomingEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "r1", ev.ID)
	assert.Equal(t, EventSendMessage, ev.Type)
	assert.Equal(t, "u2", ev.Receiver)
	assert.Equal(t, "hello", ev.Content)

	raw = `{"id":"r2","type":"messagesRead","chat_id":"c1","message_ids":["m1","m2"]}`
	ev = IncomingEvent{}
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "c1", ev.ChatID)
	assert.Equal(t, []string{"m1", "m2"}, ev.MessageIDs)
}

func TestAckPayloadOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(AckPayload{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}
