package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/auth"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/realtime"
	"stealthy-realtime/internal/wsconn"
)

// WebSocketHandler is the plain JSON transport: every frame is
// {"event": "...", "data": {...}} in both directions.
type WebSocketHandler struct {
	Handler    *realtime.Handler
	Decoder    *realtime.Decoder
	CookieName string
	MaxPayload int64
	Conn       wsconn.Options
	Log        *slog.Logger

	// AllowedOrigin is the browser origin besides the server itself that may
	// open a socket.
	AllowedOrigin string
}

type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func encodeFrame(env model.Envelope) ([]byte, error) {
	return json.Marshal(serverFrame{Event: string(env.Event), Data: env.Payload})
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request, h.CookieName)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login to access this route"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return auth.OriginAllowed(r, h.AllowedOrigin) },
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if h.MaxPayload > 0 {
		ws.SetReadLimit(h.MaxPayload)
	}

	opts := h.Conn
	opts.Log = h.log()
	conn := wsconn.New(ws, encodeFrame, opts)
	go conn.Run()

	sess, err := h.Handler.Connect(token, conn)
	if err != nil {
		frame, _ := json.Marshal(serverFrame{Event: "error", Data: gin.H{"message": "Invalid authentication token"}})
		conn.CloseAfter(frame)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	h.serve(ctx, conn, sess)
}

func (h *WebSocketHandler) serve(ctx context.Context, conn *wsconn.Conn, sess *realtime.Session) {
	defer h.Handler.Disconnect(sess)
	defer h.Handler.Recover(sess)

	for {
		data, err := conn.Read()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(conn, "error", gin.H{"message": "Invalid frame"})
			continue
		}
		if frame.Event == "ping" {
			h.reply(conn, "pong", nil)
			continue
		}

		sig, err := h.Decoder.Decode(frame.Event, frame.Data)
		if err == nil {
			err = h.Handler.Handle(ctx, sess, sig)
		}
		if err != nil {
			h.log().Debug("event rejected", "userId", sess.UserID(), "event", frame.Event, "error", err)
			h.reply(conn, "error", gin.H{"event": frame.Event, "message": apperrors.Reason(err)})
			if errors.Is(err, apperrors.ErrState) {
				return
			}
		}
	}
}

func (h *WebSocketHandler) reply(conn *wsconn.Conn, event string, data any) {
	frame, err := json.Marshal(serverFrame{Event: event, Data: data})
	if err != nil {
		return
	}
	_ = conn.Enqueue(frame)
}

func (h *WebSocketHandler) log() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}
