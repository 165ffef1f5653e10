// Package notify buffers out-of-band platform notifications (new
// match, new like, system) for display. Purely a bounded display
// buffer: no dedup, no persistence.
package notify

import (
	"sync"

	"github.com/zawajapp/zawaj/internal/model"
)

// DefaultCap is the buffer size used when none is configured.
const DefaultCap = 50

// Relay holds the most recent notifications, newest first.
type Relay struct {
	mu    sync.Mutex
	items []model.Notification
	cap   int
}

// NewRelay creates a relay holding at most capacity entries.
func NewRelay(capacity int) *Relay {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Relay{cap: capacity}
}

// Add prepends a notification, dropping the oldest past capacity.
func (r *Relay) Add(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]model.Notification{n}, r.items...)
	if len(r.items) > r.cap {
		r.items = r.items[:r.cap]
	}
}

// List returns a copy of the buffered notifications, newest first.
func (r *Relay) List() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of buffered notifications.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Clear empties the buffer.
func (r *Relay) Clear() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}
