package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zawajapp/zawaj/internal/auth"
	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned for commands issued while the channel
	// is down. Callers suspend sends rather than queueing them.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrAckTimeout is returned when the gateway does not acknowledge a
	// command within the configured window.
	ErrAckTimeout = errors.New("gateway ack timeout")
)

// Options configure a Manager.
type Options struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	AckTimeout           time.Duration
	HandshakeTimeout     time.Duration
}

func (o *Options) fill() {
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay < o.ReconnectDelay {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

// Manager owns the single authenticated realtime channel of a session:
// connect and handshake, supervision and bounded reconnect, room
// re-join, and command emission with optional acknowledgment.
type Manager struct {
	opts    Options
	tokens  auth.TokenSource
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *conn
	closing bool
	// dialing is set while any dial is in flight, whether from an
	// explicit Connect or the reconnect loop. At most one channel may
	// ever be installed; a concurrent dial would leak the loser's
	// pumps and double every inbound event.
	dialing bool

	rooms   *roomTracker
	nextAck atomic.Uint64
}

// NewManager creates a gateway manager. Connect must be called to open
// the channel.
func NewManager(opts Options, tokens auth.TokenSource, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Manager {
	opts.fill()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:    opts,
		tokens:  tokens,
		bus:     b,
		machine: machine,
		logger:  logger,
		rooms:   newRoomTracker(),
	}
}

// Connect opens the channel. No-op when already connected or a dial is
// in progress. When no credential is available it stays disconnected
// without error; the auth collaborator will trigger a new Connect once
// a token exists.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil || m.dialing {
		m.mu.Unlock()
		return nil
	}
	if _, err := m.tokens.Token(); err != nil {
		m.mu.Unlock()
		m.logger.Info("gateway connect skipped, no credential")
		return nil
	}
	m.closing = false
	m.dialing = true
	m.mu.Unlock()

	_ = m.machine.Transition(status.Connecting)

	c, err := m.dial(ctx)

	m.mu.Lock()
	m.dialing = false
	if err == nil {
		if m.closing || m.conn != nil {
			// Someone else installed a channel while we dialed.
			m.mu.Unlock()
			c.close()
			return nil
		}
		m.conn = c
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("gateway dial failed", zap.Error(err))
		_ = m.machine.Transition(status.Reconnecting)
		go m.reconnectLoop()
		return nil
	}

	m.afterConnect()
	return nil
}

// Disconnect tears the channel down and suppresses reconnection.
// Channel-scoped state (presence, typing) is cleared by its owners on
// the conn.down event; conversation and message stores keep their
// last-known-good content.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	c := m.conn
	m.conn = nil
	m.mu.Unlock()

	if c != nil {
		c.close()
	}
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.bus.Publish(bus.Event{Kind: bus.KindConnDown, Timestamp: time.Now()})
}

// Connected reports whether commands can currently be emitted.
func (m *Manager) Connected() bool {
	return m.machine.Connected()
}

// Emit sends a fire-and-forget command.
func (m *Manager) Emit(event string, data any) error {
	f, err := NewFrame(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c := m.current()
	if c == nil {
		return ErrNotConnected
	}
	if !c.enqueue(f) {
		return ErrNotConnected
	}
	return nil
}

// EmitWithAck sends a command and waits for the gateway's matching
// acknowledgment, bounded by ctx and the configured ack timeout.
func (m *Manager) EmitWithAck(ctx context.Context, event string, data any) (AckResult, error) {
	f, err := NewFrame(event, data)
	if err != nil {
		return AckResult{}, fmt.Errorf("encode %s: %w", event, err)
	}
	c := m.current()
	if c == nil {
		return AckResult{}, ErrNotConnected
	}

	f.AckID = m.nextAck.Add(1)
	ch := c.awaitAck(f.AckID)
	if !c.enqueue(f) {
		c.dropWaiter(f.AckID)
		return AckResult{}, ErrNotConnected
	}

	timer := time.NewTimer(m.opts.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		c.dropWaiter(f.AckID)
		return AckResult{}, ErrAckTimeout
	case <-c.closed:
		c.dropWaiter(f.AckID)
		return AckResult{}, ErrNotConnected
	case <-ctx.Done():
		c.dropWaiter(f.AckID)
		return AckResult{}, ctx.Err()
	}
}

// JoinConversation subscribes to a conversation room and records it
// for reconnect replay.
func (m *Manager) JoinConversation(ctx context.Context, conversationID string) error {
	m.rooms.add(conversationID)
	res, err := m.EmitWithAck(ctx, EvtJoinConversation, RoomPayload{ConversationID: conversationID})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("join %s refused: %s", conversationID, res.Error)
	}
	return nil
}

// LeaveConversation unsubscribes from a room. The leave signal is best
// effort; switching conversations must not wait on it.
func (m *Manager) LeaveConversation(conversationID string) {
	m.rooms.remove(conversationID)
	if err := m.Emit(EvtLeaveConversation, RoomPayload{ConversationID: conversationID}); err != nil && !errors.Is(err, ErrNotConnected) {
		m.logger.Warn("leave room failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func (m *Manager) current() *conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// dial performs the authenticated handshake. The token is re-read from
// the source on every call so refreshed credentials are used.
func (m *Manager) dial(ctx context.Context) (*conn, error) {
	tok, err := m.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	return newConn(ws, m.bus, m.logger, m.onDrop), nil
}

// afterConnect replays the rooms of interest, requests a fresh
// presence snapshot and announces the channel as usable.
func (m *Manager) afterConnect() {
	_ = m.machine.Transition(status.Connected)

	for _, id := range m.rooms.list() {
		if err := m.Emit(EvtJoinConversation, RoomPayload{ConversationID: id}); err != nil {
			m.logger.Warn("room rejoin failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
	if err := m.Emit(EvtPresenceSnapshot, nil); err != nil {
		m.logger.Warn("presence snapshot request failed", zap.Error(err))
	}

	m.logger.Info("gateway connected", zap.Int("rooms", len(m.rooms.list())))
	m.bus.Publish(bus.Event{Kind: bus.KindConnUp, Timestamp: time.Now()})
}

// onDrop runs when the live connection dies from a transport error.
func (m *Manager) onDrop(err error) {
	m.mu.Lock()
	closing := m.closing
	m.conn = nil
	m.mu.Unlock()

	m.bus.Publish(bus.Event{Kind: bus.KindConnDown, Timestamp: time.Now()})

	if closing {
		return
	}

	m.logger.Warn("gateway connection lost", zap.Error(err))
	_ = m.machine.Transition(status.Reconnecting)
	go m.reconnectLoop()
}

// reconnectLoop retries the dial with doubling delay up to the bounded
// attempt count, then rests in disconnected until an explicit Connect.
func (m *Manager) reconnectLoop() {
	delay := m.opts.ReconnectDelay

	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(delay)

		m.mu.Lock()
		if m.closing || m.conn != nil || m.dialing {
			m.mu.Unlock()
			return
		}
		m.dialing = true
		m.mu.Unlock()

		_ = m.machine.Transition(status.Connecting)
		m.logger.Info("gateway reconnecting", zap.Int("attempt", attempt))

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.HandshakeTimeout)
		c, err := m.dial(ctx)
		cancel()

		if err == nil {
			m.mu.Lock()
			m.dialing = false
			if m.closing || m.conn != nil {
				m.mu.Unlock()
				c.close()
				return
			}
			m.conn = c
			m.mu.Unlock()
			m.afterConnect()
			return
		}

		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()

		m.logger.Warn("gateway reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		_ = m.machine.Transition(status.Reconnecting)

		delay *= 2
		if delay > m.opts.MaxReconnectDelay {
			delay = m.opts.MaxReconnectDelay
		}
	}

	m.logger.Error("gateway reconnect attempts exhausted")
	_ = m.machine.Transition(status.Disconnected)
}
