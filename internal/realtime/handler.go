package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/hub"
	"stealthy-realtime/internal/model"
)

type Deps struct {
	Hub         *hub.Hub
	Broadcaster fanout.Broadcaster
	Verifier    Verifier
	Members     MembershipStore
	Messages    MessageWriter
	Log         *slog.Logger
}

type Options struct {
	PersistTimeout   time.Duration
	MaxMessageLength int
	Now              func() time.Time
	NewID            func() string
}

// Handler drives every connection's lifecycle. One instance is built at
// startup and shared by all transports.
type Handler struct {
	hub         *hub.Hub
	broadcaster fanout.Broadcaster
	verifier    Verifier
	members     MembershipStore
	messages    MessageWriter
	log         *slog.Logger

	persistTimeout time.Duration
	maxMessageLen  int
	now            func() time.Time
	newID          func() string

	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

func NewHandler(deps Deps, opts Options) *Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		hub:            deps.Hub,
		broadcaster:    deps.Broadcaster,
		verifier:       deps.Verifier,
		members:        deps.Members,
		messages:       deps.Messages,
		log:            log.With("component", "realtime"),
		persistTimeout: opts.PersistTimeout,
		maxMessageLen:  opts.MaxMessageLength,
		now:            opts.Now,
		newID:          opts.NewID,
	}
	if h.persistTimeout <= 0 {
		h.persistTimeout = 5 * time.Second
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	return h
}

// Connect authenticates token and registers conn for the resulting identity.
// On failure the returned session is Closed and the error wraps
// apperrors.ErrAuthentication; the caller rejects the transport.
func (h *Handler) Connect(token string, conn hub.Connection) (*Session, error) {
	s := newSession(conn)

	userID, err := h.verifier.Verify(token)
	if err == nil && userID == "" {
		err = errors.New("empty identity")
	}
	if err != nil {
		s.set(StateClosed)
		if !errors.Is(err, apperrors.ErrAuthentication) {
			err = fmt.Errorf("%w: %v", apperrors.ErrAuthentication, err)
		}
		h.log.Info("connection rejected", "connId", conn.ID(), "error", err)
		return s, err
	}

	s.userID = userID
	s.set(StateAuthenticated)
	if prev := h.hub.Register(userID, conn); prev != nil {
		h.log.Info("connection superseded", "userId", userID, "connId", conn.ID(), "previousConnId", prev.ID())
	}
	s.set(StateActive)
	h.log.Debug("connection active", "userId", userID, "connId", conn.ID())
	return s, nil
}

// Handle applies one inbound signal. Errors only concern this signal; fan-out
// outcomes are never reported back to the sender.
func (h *Handler) Handle(ctx context.Context, s *Session, sig Signal) error {
	if st := s.State(); st != StateActive {
		return fmt.Errorf("%s on %s session: %w", sig.Kind(), st, apperrors.ErrState)
	}

	switch sig := sig.(type) {
	case JoinRoom:
		return h.joinRoom(ctx, s, sig.ChatID, sig.Members)
	case LeaveRoom:
		return h.leaveRoom(ctx, s, sig.ChatID, sig.Members)
	case SendMessage:
		return h.sendMessage(ctx, s, sig)
	case StartTyping:
		return h.typing(ctx, s, model.EventStartTyping, sig.ChatID, sig.Members)
	case StopTyping:
		return h.typing(ctx, s, model.EventStopTyping, sig.ChatID, sig.Members)
	default:
		return apperrors.Invalid(fmt.Sprintf("unsupported signal %T", sig))
	}
}

func (h *Handler) joinRoom(ctx context.Context, s *Session, chatID string, members []string) error {
	audience, err := h.audience(ctx, s.userID, chatID, members)
	if err != nil {
		return err
	}
	snapshot := h.hub.Join(s.userID)
	h.broadcaster.Broadcast(model.EventOnlineUsers, audience, model.OnlineUsersPayload{OnlineUsers: snapshot, ChatID: chatID})
	return nil
}

func (h *Handler) leaveRoom(ctx context.Context, s *Session, chatID string, members []string) error {
	audience, err := h.audience(ctx, s.userID, chatID, members)
	if err != nil {
		return err
	}
	snapshot := h.hub.Leave(s.userID)
	h.broadcaster.Broadcast(model.EventOnlineUsers, audience, model.OnlineUsersPayload{OnlineUsers: snapshot, ChatID: chatID})
	return nil
}

func (h *Handler) sendMessage(ctx context.Context, s *Session, sig SendMessage) error {
	if h.maxMessageLen > 0 && utf8.RuneCountInString(sig.Content) > h.maxMessageLen {
		return apperrors.Invalid("message too long")
	}
	audience, err := h.audience(ctx, s.userID, sig.ChatID, sig.Members)
	if err != nil {
		return err
	}

	now := h.now()
	msg := model.RealtimeMessage{
		ID:          h.newID(),
		Content:     sig.Content,
		Sender:      model.Sender{ID: s.userID},
		ChatID:      sig.ChatID,
		Attachments: []model.Attachment{},
		CreatedAt:   now.UTC().Format(time.RFC3339Nano),
	}
	h.persist(model.Message{
		ID:        msg.ID,
		ChatID:    sig.ChatID,
		SenderID:  s.userID,
		Content:   sig.Content,
		CreatedAt: now.UnixMilli(),
	})

	h.broadcaster.Broadcast(model.EventNewMessage, audience, model.NewMessagePayload{ChatID: sig.ChatID, Message: msg})
	h.broadcaster.Broadcast(model.EventNewMessageAlert, audience, model.ChatRefPayload{ChatID: sig.ChatID})
	return nil
}

func (h *Handler) typing(ctx context.Context, s *Session, event model.EventType, chatID string, members []string) error {
	audience, err := h.audience(ctx, s.userID, chatID, members)
	if err != nil {
		return err
	}
	h.broadcaster.BroadcastExcept(event, audience, s.userID, model.TypingPayload{ChatID: chatID, SenderID: s.userID})
	return nil
}

// audience prefers the member list carried by the signal and falls back to
// the membership store, which userID must appear in. The store is consulted
// outside any hub lock.
func (h *Handler) audience(ctx context.Context, userID, chatID string, members []string) ([]string, error) {
	if len(members) > 0 {
		return members, nil
	}
	if h.members == nil {
		return nil, apperrors.Invalid("members are required")
	}
	resolved, err := h.members.MembersOf(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of %s: %w", chatID, err)
	}
	if !lo.Contains(resolved, userID) {
		return nil, apperrors.Permission("You are not a member of this chat")
	}
	return resolved, nil
}

// persist writes the durable copy in the background. Realtime delivery does
// not wait for it.
func (h *Handler) persist(msg model.Message) {
	if h.messages == nil {
		return
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		h.log.Warn("message not persisted, shutting down", "chatId", msg.ChatID, "senderId", msg.SenderID)
		return
	}
	h.pending.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				h.log.Error("persist panic", "chatId", msg.ChatID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		if err := h.messages.Append(ctx, msg); err != nil {
			h.log.Warn("persist message failed", "chatId", msg.ChatID, "senderId", msg.SenderID, "messageId", msg.ID, "error", err)
		}
	}()
}

// Disconnect deregisters the session, drops its presence and tells every
// connected user about the new online set. Safe to call more than once.
func (h *Handler) Disconnect(s *Session) {
	prev := s.close()
	if prev == StateClosed {
		return
	}
	defer func() { _ = s.conn.Close() }()
	if prev != StateActive {
		return
	}

	dep, ok := h.hub.Disconnect(s.userID, s.conn)
	if !ok {
		h.log.Debug("superseded connection closed", "userId", s.userID, "connId", s.conn.ID())
		return
	}
	h.log.Debug("connection closed", "userId", s.userID, "connId", s.conn.ID())
	h.broadcaster.Broadcast(model.EventOnlineUsers, dep.Audience, model.OnlineUsersPayload{OnlineUsers: dep.Snapshot})
}

// Recover must be deferred directly at the top of each per-connection
// goroutine. A panic is logged and turned into a disconnect.
func (h *Handler) Recover(s *Session) {
	if r := recover(); r != nil {
		h.log.Error("connection panic", "userId", s.userID, "connId", s.conn.ID(), "panic", r, "stack", string(debug.Stack()))
		h.Disconnect(s)
	}
}

// Presence returns the current online snapshot.
func (h *Handler) Presence() []string {
	return h.hub.Snapshot()
}

// Shutdown closes every registered connection and waits for in-flight
// persistence writes until ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	conns := h.hub.Drain()
	for _, c := range conns {
		_ = c.Close()
	}
	h.log.Info("connections drained", "count", len(conns))

	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
