package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"stealthy-realtime/internal/apperrors"
)

type Kind int

const (
	KindJoinRoom Kind = iota + 1
	KindLeaveRoom
	KindSendMessage
	KindStartTyping
	KindStopTyping
)

func (k Kind) String() string {
	switch k {
	case KindJoinRoom:
		return "JOIN_ROOM"
	case KindLeaveRoom:
		return "LEAVE_ROOM"
	case KindSendMessage:
		return "SEND_MESSAGE"
	case KindStartTyping:
		return "START_TYPING"
	case KindStopTyping:
		return "STOP_TYPING"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Signal is an inbound client event. The concrete types below are the only
// implementations.
type Signal interface {
	Kind() Kind
}

type JoinRoom struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

type LeaveRoom struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

type SendMessage struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Content string   `json:"content" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

type StartTyping struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

type StopTyping struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

func (JoinRoom) Kind() Kind    { return KindJoinRoom }
func (LeaveRoom) Kind() Kind   { return KindLeaveRoom }
func (SendMessage) Kind() Kind { return KindSendMessage }
func (StartTyping) Kind() Kind { return KindStartTyping }
func (StopTyping) Kind() Kind  { return KindStopTyping }

var eventKinds = map[string]Kind{
	"JOIN_ROOM":    KindJoinRoom,
	"CHAT_JOINED":  KindJoinRoom,
	"LEAVE_ROOM":   KindLeaveRoom,
	"CHAT_LEAVED":  KindLeaveRoom,
	"SEND_MESSAGE": KindSendMessage,
	"NEW_MESSAGE":  KindSendMessage,
	"START_TYPING": KindStartTyping,
	"STOP_TYPING":  KindStopTyping,
}

// KindOf maps a wire event name to its signal kind.
func KindOf(event string) (Kind, bool) {
	k, ok := eventKinds[event]
	return k, ok
}

// Decoder parses and validates inbound event payloads.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New()}
}

type sendMessageWire struct {
	ChatID  string   `json:"chatId"`
	Content string   `json:"content"`
	Message string   `json:"message"`
	Members []string `json:"members"`
}

func (d *Decoder) Decode(event string, raw json.RawMessage) (Signal, error) {
	kind, ok := KindOf(event)
	if !ok {
		return nil, apperrors.Invalid(fmt.Sprintf("unknown event %q", event))
	}
	if len(raw) == 0 {
		return nil, apperrors.Invalid(fmt.Sprintf("%s: missing payload", kind))
	}

	var sig Signal
	var err error
	switch kind {
	case KindJoinRoom:
		var s JoinRoom
		err = json.Unmarshal(raw, &s)
		sig = s
	case KindLeaveRoom:
		var s LeaveRoom
		err = json.Unmarshal(raw, &s)
		sig = s
	case KindSendMessage:
		var w sendMessageWire
		err = json.Unmarshal(raw, &w)
		content := w.Content
		if content == "" {
			content = w.Message
		}
		sig = SendMessage{ChatID: w.ChatID, Content: content, Members: w.Members}
	case KindStartTyping:
		var s StartTyping
		err = json.Unmarshal(raw, &s)
		sig = s
	case KindStopTyping:
		var s StopTyping
		err = json.Unmarshal(raw, &s)
		sig = s
	}
	if err != nil {
		return nil, apperrors.Invalid(fmt.Sprintf("%s: %v", kind, err))
	}
	if err := d.validate.Struct(sig); err != nil {
		return nil, apperrors.Invalid(fmt.Sprintf("%s: %v", kind, err))
	}
	return sig, nil
}
