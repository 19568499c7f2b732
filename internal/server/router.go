package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/config"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/handler"
	"stealthy-realtime/internal/hub"
	"stealthy-realtime/internal/middleware"
	"stealthy-realtime/internal/realtime"
	"stealthy-realtime/internal/socketio"
	"stealthy-realtime/internal/store"
	"stealthy-realtime/internal/wsconn"
)

type Deps struct {
	Store       *store.Store
	Hub         *hub.Hub
	Realtime    *realtime.Handler
	Broadcaster fanout.Broadcaster
	Verifier    middleware.TokenVerifier
	// Limiter throttles websocket upgrades per client IP. Nil disables it.
	Limiter *middleware.RateLimiter
	Config  config.Config
	Log     *slog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config
	decoder := realtime.NewDecoder()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.FrontendURL))

	health := &handler.HealthHandler{Stats: deps.Hub.Stats}
	r.GET("/health", health.Check)

	upgrade := []gin.HandlerFunc{}
	if deps.Limiter != nil {
		upgrade = append(upgrade, middleware.RateLimitMiddleware(deps.Limiter, log))
	}

	sio := socketio.NewServer(socketio.Deps{
		Handler: deps.Realtime,
		Decoder: decoder,
		Log:     log,
	}, socketio.Options{
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxPayload:   cfg.MaxPayload,
		QueueSize:    cfg.SendQueueSize,
		CookieName:   cfg.CookieName,

		AllowedOrigin: cfg.FrontendURL,
	})
	r.GET("/socket.io/", append(upgrade, gin.WrapH(sio))...)

	ws := &handler.WebSocketHandler{
		Handler:       deps.Realtime,
		Decoder:       decoder,
		CookieName:    cfg.CookieName,
		AllowedOrigin: cfg.FrontendURL,
		MaxPayload:    cfg.MaxPayload,
		Conn: wsconn.Options{
			QueueSize:    cfg.SendQueueSize,
			WriteTimeout: cfg.WriteTimeout,
			PingInterval: cfg.PingInterval,
			PongWait:     cfg.PingInterval + cfg.PingTimeout,
			Log:          log,
		},
		Log: log,
	}
	r.GET("/ws", append(upgrade, ws.Serve)...)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.Verifier, cfg.CookieName))

	chats := &handler.ChatHandler{Store: deps.Store, Broadcaster: deps.Broadcaster, Log: log}
	protected.GET("/chats", chats.List)
	protected.POST("/chats", chats.Create)
	protected.GET("/chats/:id", chats.Get)
	protected.PATCH("/chats/:id", chats.Rename)
	protected.DELETE("/chats/:id", chats.Delete)
	protected.POST("/chats/:id/members", chats.AddMembers)
	protected.DELETE("/chats/:id/members/:userId", chats.RemoveMember)
	protected.POST("/chats/:id/leave", chats.Leave)

	messages := &handler.MessageHandler{Store: deps.Store, Broadcaster: deps.Broadcaster, MaxMessageLength: cfg.MaxMessageLength}
	protected.GET("/chats/:id/messages", messages.List)
	protected.POST("/chats/:id/messages", messages.Send)

	requests := &handler.RequestHandler{Store: deps.Store, Broadcaster: deps.Broadcaster}
	protected.POST("/requests", requests.Send)
	protected.GET("/requests", requests.List)
	protected.POST("/requests/:id/respond", requests.Respond)

	presence := &handler.PresenceHandler{Hub: deps.Hub}
	protected.GET("/presence", presence.Get)

	return r
}
