package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		check   func(t *testing.T, env Envelope)
	}{
		{
			name: "update with data",
			raw:  `{"type":"update","topic":"dashboard","data":{"days":30},"timestamp":"2025-01-01T00:00:00Z"}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, MessageTypeUpdate, env.Type)
				assert.Equal(t, "dashboard", env.Topic)
				assert.JSONEq(t, `{"days":30}`, string(env.Data))
			},
		},
		{
			name: "pong",
			raw:  `{"type":"pong","timestamp":"2025-01-01T00:00:00Z"}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, MessageTypePong, env.Type)
			},
		},
		{
			name: "error without topic",
			raw:  `{"type":"error","message":"boom"}`,
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, "boom", env.Message)
			},
		},
		{
			name:    "update without topic",
			raw:     `{"type":"update","data":{}}`,
			wantErr: ErrMissingTopic,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"telemetry"}`,
			wantErr: ErrUnknownMessageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			tt.check(t, env)
		})
	}
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.Error(t, err)
}

func TestSubscribeMessageFlattensParams(t *testing.T) {
	msg := SubscribeMessage{Topic: "dashboard", Params: map[string]interface{}{"days": 30}}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","topic":"dashboard","days":30}`, string(raw))
}

func TestSubscribeMessageParamsCannotOverrideType(t *testing.T) {
	msg := SubscribeMessage{Topic: "workers", Params: map[string]interface{}{"type": "x", "topic": "y"}}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","topic":"workers"}`, string(raw))
}

func TestControlMessages(t *testing.T) {
	raw, err := json.Marshal(NewUnsubscribe("workers"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unsubscribe","topic":"workers"}`, string(raw))

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err = json.Marshal(NewPing(at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":"2025-03-01T12:00:00Z"}`, string(raw))
}

func TestEnvelopeDecode(t *testing.T) {
	env := NewUpdate(TopicWorkers, json.RawMessage(`{"workers":[{"id":"w1","state":"busy"}]}`), time.Now())
	var payload WorkersPayload
	require.NoError(t, env.Decode(&payload))
	require.Len(t, payload.Workers, 1)
	assert.Equal(t, WorkerStateBusy, payload.Workers[0].State)

	assert.Error(t, Envelope{Type: MessageTypeUpdate, Topic: "x"}.Decode(&payload))
}
