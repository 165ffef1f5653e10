// Package typing coordinates ephemeral typing-state signals for the
// open conversation: throttled emission for the local user and
// expiry-guarded tracking of the peer.
package typing

import (
	"sync"
	"time"

	"github.com/zawajapp/zawaj/internal/gateway"
)

// Emitter is the slice of the gateway the coordinator needs.
type Emitter interface {
	Emit(event string, data any) error
}

// Options configure the coordinator's timing windows.
type Options struct {
	// AutoStop ends local typing after this long without another
	// StartTyping call, so a stalled client never leaves the peer's
	// indicator on.
	AutoStop time.Duration

	// RemoteExpiry clears the peer's typing flag if no refresh arrives,
	// guarding against a lost typing_stop signal.
	RemoteExpiry time.Duration
}

func (o *Options) fill() {
	if o.AutoStop <= 0 {
		o.AutoStop = 3 * time.Second
	}
	if o.RemoteExpiry <= 0 {
		o.RemoteExpiry = 5 * time.Second
	}
}

// Coordinator owns typing state for at most one open conversation.
type Coordinator struct {
	emitter Emitter
	opts    Options

	mu          sync.Mutex
	convID      string
	selfTyping  bool
	stopTimer   *time.Timer
	otherTyping bool
	expireTimer *time.Timer
}

// NewCoordinator creates a coordinator emitting through em.
func NewCoordinator(em Emitter, opts Options) *Coordinator {
	opts.fill()
	return &Coordinator{emitter: em, opts: opts}
}

// Bind switches the coordinator to a conversation, clearing any state
// of the previous one.
func (c *Coordinator) Bind(conversationID string) {
	c.mu.Lock()
	c.resetLocked()
	c.convID = conversationID
	c.mu.Unlock()
}

// Reset clears all state and timers. Called on conversation close and
// whenever the channel goes down (typing state is channel-scoped).
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Coordinator) resetLocked() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	if c.expireTimer != nil {
		c.expireTimer.Stop()
		c.expireTimer = nil
	}
	c.convID = ""
	c.selfTyping = false
	c.otherTyping = false
}

// StartTyping signals that the local user is typing. The signal is
// throttled: only the first call of a burst emits typing_start; every
// call re-arms the auto-stop timer.
func (c *Coordinator) StartTyping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convID == "" {
		return
	}

	if !c.selfTyping {
		if err := c.emitter.Emit(gateway.EvtTypingStart, gateway.RoomPayload{ConversationID: c.convID}); err != nil {
			return
		}
		c.selfTyping = true
	}

	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	c.stopTimer = time.AfterFunc(c.opts.AutoStop, c.autoStop)
}

// StopTyping cancels the auto-stop timer and signals typing_stop.
// Called explicitly on send, on input blur and on empty input.
func (c *Coordinator) StopTyping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) autoStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	if !c.selfTyping || c.convID == "" {
		return
	}
	c.selfTyping = false
	_ = c.emitter.Emit(gateway.EvtTypingStop, gateway.RoomPayload{ConversationID: c.convID})
}

// ApplyRemote records an inbound user_typing signal for the open
// conversation. Signals for other conversations or from self are
// ignored. A set flag self-expires if no refresh arrives; the peer
// owns its stop signal, the expiry only covers a lost one.
func (c *Coordinator) ApplyRemote(conversationID, userID, selfID string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convID == "" || conversationID != c.convID || userID == selfID {
		return
	}

	if c.expireTimer != nil {
		c.expireTimer.Stop()
		c.expireTimer = nil
	}

	c.otherTyping = isTyping
	if isTyping {
		c.expireTimer = time.AfterFunc(c.opts.RemoteExpiry, c.expireRemote)
	}
}

func (c *Coordinator) expireRemote() {
	c.mu.Lock()
	c.otherTyping = false
	c.expireTimer = nil
	c.mu.Unlock()
}

// OtherTyping reports whether the peer is currently typing.
func (c *Coordinator) OtherTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otherTyping
}
