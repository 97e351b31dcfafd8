package orchestrator

import (
	"sync"

	"github.com/arcwright/agentos/pkg/agent"
)

// Mailbox is one agent's FIFO inbox. Every mutating access goes
// through its own mutex; the orchestrator's admission lock is never
// held while draining a mailbox, matching the "per-mailbox FIFO,
// mutated only via sendMessage/getMessages" ownership rule.
type Mailbox struct {
	mu       sync.Mutex
	messages []agent.Message
}

func newMailbox() *Mailbox {
	return &Mailbox{}
}

// Send appends a message to the back of the mailbox.
func (m *Mailbox) Send(msg agent.Message) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
}

// Drain removes and returns every message currently queued, in
// arrival order.
func (m *Mailbox) Drain() []agent.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	drained := m.messages
	m.messages = nil
	return drained
}

// Requeue re-inserts messages at the front of the mailbox, preserving
// their original relative order — used by system-event processing to
// put back every message it did not consume as a system event.
func (m *Mailbox) Requeue(messages []agent.Message) {
	if len(messages) == 0 {
		return
	}
	m.mu.Lock()
	m.messages = append(messages, m.messages...)
	m.mu.Unlock()
}
