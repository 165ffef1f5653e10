package presence

import (
	"context"
	"sync"
	"time"

	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/model"
)

// Tracker answers "is user X online" in O(1). It is fed exclusively by
// inbound presence events (single updates and the bulk snapshot sent
// on connect) and holds nothing across connections: conn.down wipes
// the map so stale positives cannot survive a reconnect.
type Tracker struct {
	mu     sync.RWMutex
	users  map[string]model.PresenceRecord
	bus    *bus.Bus
	cancel context.CancelFunc
}

// NewTracker creates an empty tracker.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		users: make(map[string]model.PresenceRecord),
		bus:   b,
	}
}

// Start subscribes to presence and connection events on the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	presenceCh, unsubPresence := t.bus.Subscribe("presence.", 256)
	connCh, unsubConn := t.bus.Subscribe(bus.KindConnDown, 8)

	go func() {
		defer unsubPresence()
		defer unsubConn()
		for {
			select {
			case evt := <-presenceCh:
				t.handle(evt)
			case <-connCh:
				t.Reset()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker's event loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) handle(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case bus.PresenceUpdate:
		t.Apply(p.UserID, p.Online, evt.Timestamp)
	case bus.PresenceSnapshot:
		t.ApplySnapshot(p.Users, evt.Timestamp)
	}
}

// Apply upserts a single presence record.
func (t *Tracker) Apply(userID string, online bool, at time.Time) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	t.users[userID] = model.PresenceRecord{Online: online, LastUpdate: at}
	t.mu.Unlock()
}

// ApplySnapshot upserts the bulk online-users list. Entries absent
// from the snapshot keep their previous state; the snapshot is
// additive because servers may scope it to relevant users only.
func (t *Tracker) ApplySnapshot(users []bus.PresenceUpdate, at time.Time) {
	t.mu.Lock()
	for _, u := range users {
		if u.UserID == "" {
			continue
		}
		t.users[u.UserID] = model.PresenceRecord{Online: u.Online, LastUpdate: at}
	}
	t.mu.Unlock()
}

// IsOnline returns the user's current flag, false when unknown.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.users[userID].Online
}

// Lookup returns the full record and whether the user is known.
func (t *Tracker) Lookup(userID string) (model.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.users[userID]
	return rec, ok
}

// Reset drops all records. Called when the channel goes down; a fresh
// snapshot arrives with the next connection.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.users = make(map[string]model.PresenceRecord)
	t.mu.Unlock()
}
