package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zawajapp/zawaj/internal/bus"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the gateway.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxFrameSize = 512 * 1024

	// Outbound frame queue depth.
	sendQueue = 64
)

// conn owns one live websocket and its read/write pumps. It translates
// inbound frames onto the bus, routes ack frames to their waiters and
// reports the first fatal transport error through onDrop exactly once.
type conn struct {
	ws     *websocket.Conn
	bus    *bus.Bus
	logger *zap.Logger
	onDrop func(err error)

	out    chan Frame
	closed chan struct{}
	once   sync.Once

	ackMu   sync.Mutex
	waiters map[uint64]chan AckResult
}

func newConn(ws *websocket.Conn, b *bus.Bus, logger *zap.Logger, onDrop func(error)) *conn {
	c := &conn{
		ws:      ws,
		bus:     b,
		logger:  logger,
		onDrop:  onDrop,
		out:     make(chan Frame, sendQueue),
		closed:  make(chan struct{}),
		waiters: make(map[uint64]chan AckResult),
	}
	go c.readPump()
	go c.writePump()
	return c
}

// enqueue hands a frame to the writer pump. Returns false when the
// connection is closed or the queue is full.
func (c *conn) enqueue(f Frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- f:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// awaitAck registers an ack waiter for id. The caller must call
// dropWaiter when done.
func (c *conn) awaitAck(id uint64) <-chan AckResult {
	ch := make(chan AckResult, 1)
	c.ackMu.Lock()
	c.waiters[id] = ch
	c.ackMu.Unlock()
	return ch
}

func (c *conn) dropWaiter(id uint64) {
	c.ackMu.Lock()
	delete(c.waiters, id)
	c.ackMu.Unlock()
}

// close tears the socket down. Safe to call multiple times; the drop
// callback fires at most once, and only for transport errors.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *conn) drop(err error) {
	var fire bool
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
		fire = true
	})
	if fire && c.onDrop != nil {
		c.onDrop(err)
	}
}

func (c *conn) readPump() {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.drop(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("undecodable gateway frame", zap.Error(err))
			continue
		}

		if f.Event == evtAck {
			c.routeAck(f)
			continue
		}

		if evt, ok := translate(f, c.logger); ok {
			c.bus.Publish(evt)
		}
	}
}

func (c *conn) routeAck(f Frame) {
	var res AckResult
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &res); err != nil {
			c.logger.Warn("undecodable ack payload", zap.Uint64("ack_id", f.AckID), zap.Error(err))
			res = AckResult{Success: false, Error: "undecodable ack"}
		}
	}

	c.ackMu.Lock()
	ch, ok := c.waiters[f.AckID]
	if ok {
		delete(c.waiters, f.AckID)
	}
	c.ackMu.Unlock()

	if ok {
		ch <- res
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.drop(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drop(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
