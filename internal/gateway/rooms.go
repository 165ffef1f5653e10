package gateway

import "sync"

// roomTracker records the conversation rooms this session is
// interested in. Reconnects replay the set explicitly; relying on the
// server to remember subscriptions across connections loses messages
// sent during a brief disconnect.
type roomTracker struct {
	mu    sync.Mutex
	rooms map[string]struct{}
}

func newRoomTracker() *roomTracker {
	return &roomTracker{rooms: make(map[string]struct{})}
}

func (t *roomTracker) add(conversationID string) {
	t.mu.Lock()
	t.rooms[conversationID] = struct{}{}
	t.mu.Unlock()
}

func (t *roomTracker) remove(conversationID string) {
	t.mu.Lock()
	delete(t.rooms, conversationID)
	t.mu.Unlock()
}

func (t *roomTracker) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		out = append(out, id)
	}
	return out
}
