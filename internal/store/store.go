package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

type Options struct {
	// BadgerPath is the message log directory. Empty keeps the log in memory.
	BadgerPath      string
	MaxGroupMembers int
	Log             *slog.Logger
	Now             func() time.Time
}

// Store holds chats and friend requests in memory and the message history in
// BadgerDB. It is the membership source and message writer of the realtime
// layer.
type Store struct {
	mu sync.RWMutex

	chatsByID    map[string]model.Chat
	directByPair map[string]string // sorted "a|b" -> chatID
	requestsByID map[string]model.FriendRequest

	maxGroupMembers int
	now             func() time.Time
	log             *slog.Logger

	db       *badger.DB
	messages *messageLog
}

func Open(opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "store")

	badgerOpts := badger.DefaultOptions(opts.BadgerPath).WithLoggingLevel(badger.ERROR)
	if opts.BadgerPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		chatsByID:       make(map[string]model.Chat),
		directByPair:    make(map[string]string),
		requestsByID:    make(map[string]model.FriendRequest),
		maxGroupMembers: opts.MaxGroupMembers,
		now:             opts.Now,
		log:             log,
		db:              db,
		messages:        newMessageLog(db),
	}
	if s.maxGroupMembers <= 0 {
		s.maxGroupMembers = 100
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MembersOf returns the member list of chatID.
func (s *Store) MembersOf(ctx context.Context, chatID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chatsByID[chatID]
	if !ok {
		return nil, apperrors.NotFound("Chat not found")
	}
	return append([]string(nil), chat.Members...), nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func cloneChat(c model.Chat) model.Chat {
	c.Members = append([]string(nil), c.Members...)
	return c
}
