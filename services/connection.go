package services

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"game-session-system/models"
)

const (
	writeDeadline = 5 * time.Second

	// TextMessage matches the websocket text frame opcode.
	TextMessage = 1
)

var ErrConnectionClosed = eris.New("connection closed")

// FrameWriter is the part of a websocket connection the writer needs.
type FrameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection is a Handle backed by a websocket. Frames are queued and written
// by a single goroutine, in the order Send was called.
type Connection struct {
	id     string
	conn   FrameWriter
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
	log    zerolog.Logger
}

// NewConnection starts the writer goroutine for conn.
func NewConnection(conn FrameWriter, buffer int, logger zerolog.Logger) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	c := &Connection{
		id:    uuid.NewString(),
		conn:  conn,
		queue: make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
	c.log = logger.With().Str("conn_id", c.id).Logger()
	go c.writeLoop()
	return c
}

func (c *Connection) ID() string { return c.id }

// Send encodes env and queues it. A full queue closes the connection.
func (c *Connection) Send(env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return eris.Wrap(err, "must use a json serializable payload")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.queue <- data:
		return nil
	default:
		c.log.Warn().Str("event", env.Type).Msg("send queue full, dropping slow connection")
		c.closeLocked()
		return eris.Wrap(ErrConnectionClosed, "send queue full")
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// Done is closed once the writer has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}

func (c *Connection) writeLoop() {
	defer c.once.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close failed")
		}
		close(c.done)
	})

	for data := range c.queue {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			c.log.Error().Err(err).Msg("set write deadline failed")
			c.abandon()
			return
		}
		if err := c.conn.WriteMessage(TextMessage, data); err != nil {
			c.log.Error().Err(err).Msg("websocket write message failed")
			c.abandon()
			return
		}
	}
}

// abandon marks the connection closed after a write error and drains the queue.
func (c *Connection) abandon() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
	for range c.queue {
	}
}
