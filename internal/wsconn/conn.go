package wsconn

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

// Encoder turns an envelope into a single text frame for one wire protocol.
type Encoder func(env model.Envelope) ([]byte, error)

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	// PingInterval enables websocket control pings. Zero leaves keepalive to
	// the protocol layered on top.
	PingInterval time.Duration
	PongWait     time.Duration
	Log          *slog.Logger
}

// Conn is a websocket with a bounded outbound queue drained by a single
// writer goroutine. Send never blocks on the network.
type Conn struct {
	ws     *websocket.Conn
	id     string
	encode Encoder
	log    *slog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func New(ws *websocket.Conn, encode Encoder, opts Options) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval > 0 && opts.PongWait <= opts.PingInterval {
		opts.PongWait = opts.PingInterval * 10 / 9
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Conn{
		ws:           ws,
		id:           uuid.NewString(),
		encode:       encode,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		pongWait:     opts.PongWait,
		queue:        make(chan []byte, opts.QueueSize),
		done:         make(chan struct{}),
	}
	c.log = log.With("connId", c.id)

	if c.pingInterval > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Done() <-chan struct{} { return c.done }

// Send encodes env and enqueues it.
func (c *Conn) Send(env model.Envelope) error {
	frame, err := c.encode(env)
	if err != nil {
		return err
	}
	return c.Enqueue(frame)
}

// Enqueue queues one raw text frame. It fails with apperrors.ErrQueueFull
// when the peer is not keeping up.
func (c *Conn) Enqueue(frame []byte) error {
	if frame == nil {
		frame = []byte{}
	}
	return c.enqueue(frame)
}

// CloseAfter queues frame and closes the connection once it has been written.
func (c *Conn) CloseAfter(frame []byte) {
	if err := c.Enqueue(frame); err != nil {
		_ = c.Close()
		return
	}
	if err := c.enqueue(nil); err != nil {
		_ = c.Close()
	}
}

func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return apperrors.ErrConnectionClosed
	default:
	}
	select {
	case c.queue <- frame:
		return nil
	default:
		return apperrors.ErrQueueFull
	}
}

// Read returns the next inbound data frame.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close stops the writer and closes the socket. Pending frames are dropped.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Run drains the outbound queue until the connection is closed. It must be
// the only writer of data frames on the socket.
func (c *Conn) Run() {
	defer func() { _ = c.Close() }()

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.queue:
			if frame == nil {
				return
			}
			if err := c.write(frame); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Conn) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
