package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"stealthy-realtime/internal/auth"
	"stealthy-realtime/internal/config"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/hub"
	"stealthy-realtime/internal/middleware"
	"stealthy-realtime/internal/realtime"
	"stealthy-realtime/internal/server"
	"stealthy-realtime/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	st, err := store.Open(store.Options{
		BadgerPath:      cfg.BadgerPath,
		MaxGroupMembers: cfg.MaxGroupMembers,
		Log:             log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	verifier := auth.NewVerifier(auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "stealthy-realtime",
	})

	h := hub.New()
	engine := fanout.New(h, log)
	rt := realtime.NewHandler(realtime.Deps{
		Hub:         h,
		Broadcaster: engine,
		Verifier:    verifier,
		Members:     st,
		Messages:    st,
		Log:         log,
	}, realtime.Options{
		PersistTimeout:   cfg.PersistTimeout,
		MaxMessageLength: cfg.MaxMessageLength,
	})

	var limiter *middleware.RateLimiter
	if cfg.ConnectRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.ConnectRateLimit, time.Minute)
		defer limiter.Stop()
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		Hub:         h,
		Realtime:    rt,
		Broadcaster: engine,
		Verifier:    verifier,
		Limiter:     limiter,
		Config:      cfg,
		Log:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, cfg, router, rt.Shutdown, log)
}
