package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/auth"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/realtime"
	"stealthy-realtime/internal/wsconn"
)

type Options struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	MaxPayload   int64
	QueueSize    int
	CookieName   string

	// AllowedOrigin is the browser origin besides the server itself that may
	// open a socket.
	AllowedOrigin string
}

type Deps struct {
	Handler *realtime.Handler
	Decoder *realtime.Decoder
	Log     *slog.Logger
}

// Server speaks the engine.io v4 websocket transport with a single default
// namespace.
type Server struct {
	handler  *realtime.Handler
	decoder  *realtime.Decoder
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = 1000000
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	decoder := deps.Decoder
	if decoder == nil {
		decoder = realtime.NewDecoder()
	}
	return &Server{
		handler: deps.Handler,
		decoder: decoder,
		log:     log.With("component", "socketio"),
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return auth.OriginAllowed(r, opts.AllowedOrigin) },
		},
	}
}

func encodeEnvelope(env model.Envelope) ([]byte, error) {
	packet, err := buildSocketEventPacket("/", nil, string(env.Event), env.Payload)
	if err != nil {
		return nil, err
	}
	return enginePacket(packet), nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(s.opts.MaxPayload)

	c := &client{
		conn: wsconn.New(ws, encodeEnvelope, wsconn.Options{
			QueueSize:    s.opts.QueueSize,
			WriteTimeout: s.opts.WriteTimeout,
			Log:          s.log,
		}),
		fallbackToken: auth.TokenFromRequest(r, s.opts.CookieName),
	}
	go c.conn.Run()

	open := map[string]any{
		"sid":          c.conn.ID(),
		"upgrades":     []string{},
		"pingInterval": s.opts.PingInterval.Milliseconds(),
		"pingTimeout":  s.opts.PingTimeout.Milliseconds(),
		"maxPayload":   s.opts.MaxPayload,
	}
	openBytes, _ := json.Marshal(open)
	if err := c.conn.Enqueue(append([]byte{byte(engineOpen)}, openBytes...)); err != nil {
		_ = c.conn.Close()
		return
	}

	go c.pingLoop(s.opts.PingInterval, s.opts.PingTimeout)

	sess := s.awaitConnect(c)
	if sess == nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.serve(ctx, c, sess)
}

// awaitConnect reads until the client sends its namespace connect packet and
// the handshake is authenticated. It returns nil once the socket is done.
func (s *Server) awaitConnect(c *client) (sess *realtime.Session) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handshake panic", "connId", c.conn.ID(), "panic", r)
			_ = c.conn.Close()
			sess = nil
		}
	}()

	for {
		data, err := c.conn.Read()
		if err != nil {
			_ = c.conn.Close()
			return nil
		}
		msg := string(data)
		if msg == "" {
			continue
		}
		switch enginePacketType(msg[0]) {
		case enginePong:
			c.markPong()
		case engineClose:
			_ = c.conn.Close()
			return nil
		case engineMessage:
			payload := msg[1:]
			if payload == "" || socketPacketType(payload[0]) != socketConnect {
				continue
			}
			return s.handleConnect(c, payload)
		}
	}
}

func (s *Server) handleConnect(c *client, payload string) *realtime.Session {
	ns, rawAuth, err := parseSocketConnectPacket(payload)
	if err != nil {
		s.reject(c, ns, "Invalid connect packet")
		return nil
	}

	token := c.fallbackToken
	if rawAuth != "" {
		var authObj struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(rawAuth), &authObj); err != nil {
			s.reject(c, ns, "Invalid auth")
			return nil
		}
		if authObj.Token != "" {
			token = authObj.Token
		}
	}
	if token == "" {
		s.reject(c, ns, "Please login to access this route")
		return nil
	}

	sess, err := s.handler.Connect(token, c.conn)
	if err != nil {
		s.reject(c, ns, "Invalid authentication token")
		return nil
	}

	ack, err := buildSocketConnectPacket(ns, c.conn.ID())
	if err == nil {
		_ = c.conn.Enqueue(enginePacket(ack))
	}
	return sess
}

func (s *Server) reject(c *client, namespace, reason string) {
	packet, err := buildSocketConnectErrorPacket(namespace, reason)
	if err != nil {
		_ = c.conn.Close()
		return
	}
	c.conn.CloseAfter(enginePacket(packet))
}

func (s *Server) serve(ctx context.Context, c *client, sess *realtime.Session) {
	defer s.handler.Disconnect(sess)
	defer s.handler.Recover(sess)

	for {
		data, err := c.conn.Read()
		if err != nil {
			return
		}
		if !s.handleMessage(ctx, c, sess, string(data)) {
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, sess *realtime.Session, msg string) bool {
	if msg == "" {
		return true
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineClose:
		return false
	case engineMessage:
		payload := msg[1:]
		if payload == "" {
			return true
		}
		switch socketPacketType(payload[0]) {
		case socketEvent:
			s.handleEvent(ctx, c, sess, payload)
		case socketDisconnect:
			return false
		}
	}
	return true
}

func (s *Server) handleEvent(ctx context.Context, c *client, sess *realtime.Session, payload string) {
	pkt, err := parseSocketEventPacket(payload)
	if err != nil {
		s.log.Debug("malformed event packet", "userId", sess.UserID(), "error", err)
		return
	}

	if pkt.Event == "ping" {
		s.ack(c, pkt, gin.H{})
		return
	}

	var arg json.RawMessage
	if len(pkt.Args) > 0 {
		arg = pkt.Args[0]
	}
	sig, err := s.decoder.Decode(pkt.Event, arg)
	if err == nil {
		err = s.handler.Handle(ctx, sess, sig)
	}
	if err != nil {
		s.log.Debug("event rejected", "userId", sess.UserID(), "event", pkt.Event, "error", err)
		s.ack(c, pkt, gin.H{"ok": false, "error": apperrors.Reason(err)})
		if errors.Is(err, apperrors.ErrState) {
			_ = c.conn.Close()
		}
		return
	}
	s.ack(c, pkt, gin.H{"ok": true})
}

// ack answers only packets that asked for one.
func (s *Server) ack(c *client, pkt socketEventPacket, body gin.H) {
	if pkt.ID == nil {
		return
	}
	var args []any
	if len(body) > 0 {
		args = append(args, body)
	}
	packet, err := buildSocketAckPacket(pkt.Namespace, *pkt.ID, args...)
	if err != nil {
		return
	}
	_ = c.conn.Enqueue(enginePacket(packet))
}

type client struct {
	conn          *wsconn.Conn
	fallbackToken string

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
}

// pingLoop sends engine pings every interval and closes the socket when a
// pong does not arrive within timeout.
func (c *client) pingLoop(interval, timeout time.Duration) {
	step := min(interval, timeout) / 4
	if step <= 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	nextPingAt := time.Now().Add(interval)
	for {
		select {
		case <-c.conn.Done():
			return
		case now := <-ticker.C:
			c.pingMu.Lock()
			if c.awaitingPong && now.Sub(c.pingSentAt) > timeout {
				c.pingMu.Unlock()
				_ = c.conn.Close()
				return
			}
			if c.awaitingPong || now.Before(nextPingAt) {
				c.pingMu.Unlock()
				continue
			}
			c.awaitingPong = true
			c.pingSentAt = now
			nextPingAt = now.Add(interval)
			c.pingMu.Unlock()
			_ = c.conn.Enqueue([]byte{byte(enginePing)})
		}
	}
}

func (c *client) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
