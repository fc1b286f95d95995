// Package conversation tracks per-channel windows of messages awaiting
// moderation. A window is created on the first message seen for a channel,
// grows in arrival order, and is removed when it is drained for a
// moderation pass.
package conversation

import "sync"

// Message is a single chat message pending moderation.
type Message struct {
	MessageID  string `json:"message_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Ts         int64  `json:"ts"`
}

// Registry owns the open conversation windows, keyed by channel ID.
// It is goroutine-safe. A window exists iff its channel has seen at least
// one message since the last drain.
type Registry struct {
	mu      sync.Mutex
	windows map[string][]Message
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		windows: make(map[string][]Message),
	}
}

// Record appends a message to the channel's window, creating the window if
// this is the first message since the last drain. Returns true if a new
// window was created.
func (r *Registry) Record(channelID string, msg Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.windows[channelID]
	r.windows[channelID] = append(r.windows[channelID], msg)
	return !exists
}

// Drain returns the channel's pending messages in arrival order and removes
// the window. The snapshot-and-remove is a single critical section, so a
// concurrent second drain (manual trigger racing a timer fire) sees an empty
// result and does no duplicate work.
func (r *Registry) Drain(channelID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.windows[channelID]
	delete(r.windows, channelID)
	return msgs
}

// Requeue puts messages back at the front of the channel's window, ahead of
// anything that arrived after the drain. Used when a moderation pass aborts
// after draining, so the batch is retried on a later pass instead of lost.
func (r *Registry) Requeue(channelID string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.windows[channelID] = append(append([]Message{}, msgs...), r.windows[channelID]...)
}

// Has reports whether the channel currently has an open window.
func (r *Registry) Has(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.windows[channelID]
	return ok
}

// Active returns the number of open windows.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.windows)
}
