package sse_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssekit/ssekit/core/sse"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	before := time.Now()
	msg := sse.NewMessage("hello", "system", sse.MessageTypeAlert)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "system", msg.Sender)
	assert.Equal(t, sse.MessageTypeAlert, msg.Type)
	assert.False(t, msg.Timestamp.Before(before))

	other := sse.NewMessage("hello", "system", sse.MessageTypeAlert)
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestMessageJSON(t *testing.T) {
	t.Parallel()

	msg := sse.NewMessage("hello", "system", sse.MessageTypeText)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"content":"hello"`)
	assert.Contains(t, string(data), `"sender":"system"`)
	assert.Contains(t, string(data), `"type":"text"`)
}
