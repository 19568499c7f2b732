package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type messageLog struct {
	db *badger.DB
}

func newMessageLog(db *badger.DB) *messageLog {
	return &messageLog{db: db}
}

type diskMessage struct {
	ID          string             `json:"id"`
	ChatID      string             `json:"chat"`
	SenderID    string             `json:"sender"`
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	At          int64              `json:"at"`
}

func chatPrefix(chatID string) []byte {
	return []byte("msg:" + chatID + ":")
}

// messageKey is "msg:{chat}:{unix nanos, 19 digits}:{id}" so a prefix scan
// returns a chat's messages in chronological order.
func messageKey(chatID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

func (m *messageLog) append(msg diskMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := messageKey(msg.ChatID, time.Unix(0, msg.At), msg.ID)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// list returns up to limit messages older than before (unix nanos, zero for
// the newest), oldest first.
func (m *messageLog) list(chatID string, limit int, before int64) ([]diskMessage, error) {
	prefix := chatPrefix(chatID)
	seek := append(slices.Clone(prefix), []byte("9999999999999999999")...)
	if before > 0 {
		seek = append(slices.Clone(prefix), []byte(fmt.Sprintf("%019d", before))...)
	}

	var result []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(result) < limit; it.Next() {
			var msg diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			result = append(result, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(result)
	return result, nil
}

func (m *messageLog) deleteChat(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.DropPrefix(chatPrefix(chatID))
}

func toMessage(d diskMessage) model.Message {
	return model.Message{
		ID:          d.ID,
		ChatID:      d.ChatID,
		SenderID:    d.SenderID,
		Content:     d.Content,
		Attachments: d.Attachments,
		CreatedAt:   time.Unix(0, d.At).UnixMilli(),
	}
}

// AppendMessage persists one message of chatID. Callers check membership.
func (s *Store) AppendMessage(ctx context.Context, chatID, senderID, content string, attachments []model.Attachment) (model.Message, error) {
	return s.appendMessage(ctx, uuid.NewString(), chatID, senderID, content, attachments)
}

// Append is the realtime write path. The message keeps the id it was
// broadcast with, and senders outside the chat are refused.
func (s *Store) Append(ctx context.Context, msg model.Message) error {
	if _, err := s.ChatForMember(msg.ChatID, msg.SenderID); err != nil {
		return err
	}
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.appendMessage(ctx, id, msg.ChatID, msg.SenderID, msg.Content, msg.Attachments)
	return err
}

func (s *Store) appendMessage(ctx context.Context, id, chatID, senderID, content string, attachments []model.Attachment) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return model.Message{}, apperrors.Invalid("Message content is required")
	}

	d := diskMessage{
		ID:          id,
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		Attachments: attachments,
		At:          s.now().UnixNano(),
	}
	if err := s.messages.append(d); err != nil {
		return model.Message{}, fmt.Errorf("append message: %w", err)
	}

	s.mu.Lock()
	if c, ok := s.chatsByID[chatID]; ok {
		c.UpdatedAt = time.Unix(0, d.At).UnixMilli()
		s.chatsByID[chatID] = c
	}
	s.mu.Unlock()
	return toMessage(d), nil
}

// Messages pages backwards through chatID's history. before is a createdAt in
// unix millis; zero starts from the newest message.
func (s *Store) Messages(chatID string, limit int, before int64) ([]model.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var beforeNanos int64
	if before > 0 {
		beforeNanos = time.UnixMilli(before).UnixNano()
	}
	disk, err := s.messages.list(chatID, limit, beforeNanos)
	if err != nil {
		return nil, err
	}
	return lo.Map(disk, func(d diskMessage, _ int) model.Message { return toMessage(d) }), nil
}
