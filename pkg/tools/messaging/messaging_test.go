package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	allow bool
	got   struct {
		sender, recipient string
		content           map[string]any
	}
}

func (f *fakeSender) SendMessage(ctx context.Context, senderID, recipientID string, content map[string]any) bool {
	f.got.sender = senderID
	f.got.recipient = recipientID
	f.got.content = content
	return f.allow
}

func TestTool_SendSuccess(t *testing.T) {
	fs := &fakeSender{allow: true}
	mt := New(fs)

	result, err := mt.Execute(context.Background(), map[string]any{
		"recipient_id": "agent-2",
		"content":      map[string]any{"hello": "world"},
	}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "agent-1", fs.got.sender)
	assert.Equal(t, "agent-2", fs.got.recipient)
}

func TestTool_SendFailure(t *testing.T) {
	mt := New(&fakeSender{allow: false})
	result, err := mt.Execute(context.Background(), map[string]any{
		"recipient_id": "ghost",
		"content":      map[string]any{},
	}, "agent-1")
	require.NoError(t, err)
	assert.Contains(t, result["error"], "Failed to send message")
}

func TestTool_NoSenderConfigured(t *testing.T) {
	mt := New(nil)
	result, err := mt.Execute(context.Background(), map[string]any{
		"recipient_id": "agent-2",
		"content":      map[string]any{},
	}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Messaging is not available.", result["error"])
}
