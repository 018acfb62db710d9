package testutil

import (
	"context"
	"sync"
)

// RecordingNotifier captures alert messages. Err, when set, is returned from
// every Notify call after the message is recorded.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

func (n *RecordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.Err
}

func (n *RecordingNotifier) Name() string { return "recording" }

// Messages returns the recorded messages.
func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
