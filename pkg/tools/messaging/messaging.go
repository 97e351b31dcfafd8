// Package messaging implements the messaging built-in tool: a thin
// wrapper over the orchestrator's inter-agent mailbox delivery.
package messaging

import (
	"context"
	"fmt"

	"github.com/arcwright/agentos/pkg/tool"
)

// Args is the messaging tool's parameter struct.
type Args struct {
	RecipientID string         `json:"recipient_id" jsonschema:"required,description=The ID of the agent to send the message to."`
	Content     map[string]any `json:"content" jsonschema:"required,description=A JSON object containing the message content."`
}

// Sender delivers a message from sender to recipient, returning false
// if delivery could not be completed (e.g. unknown recipient). The
// orchestrator implements this; messaging depends only on the
// narrowest interface it needs, avoiding an import cycle back to the
// orchestrator package.
type Sender interface {
	SendMessage(ctx context.Context, senderID, recipientID string, content map[string]any) bool
}

// Tool is the messaging built-in.
type Tool struct {
	sender Sender
}

// New builds a messaging tool backed by sender. sender may be nil,
// in which case Execute reports messaging as unavailable, matching
// the original's `if not orchestrator` guard.
func New(sender Sender) *Tool {
	return &Tool{sender: sender}
}

func (t *Tool) Name() string { return "messaging" }

func (t *Tool) Description() string {
	return "Sends a message to another agent in the system."
}

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

// Protected marks messaging as un-disableable when the messaging
// capability itself is enabled; the toolbox still filters it out
// entirely when the system config disables messaging.
func (t *Tool) Protected() bool { return true }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	if t.sender == nil {
		return map[string]any{"error": "Messaging is not available."}, nil
	}

	recipientID, _ := params["recipient_id"].(string)
	content, _ := params["content"].(map[string]any)

	if recipientID == "" || content == nil {
		return map[string]any{"error": "'recipient_id' and 'content' are required."}, nil
	}

	if t.sender.SendMessage(ctx, agentID, recipientID, content) {
		return map[string]any{"status": "success", "message": fmt.Sprintf("Message sent to %s.", recipientID)}, nil
	}
	return map[string]any{"error": fmt.Sprintf("Failed to send message to %s.", recipientID)}, nil
}
