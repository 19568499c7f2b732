package model

import "github.com/samber/lo"

type EventType string

const (
	EventNewMessage      EventType = "NEW_MESSAGE"
	EventNewMessageAlert EventType = "NEW_MESSAGE_ALERT"
	EventStartTyping     EventType = "START_TYPING"
	EventStopTyping      EventType = "STOP_TYPING"
	EventOnlineUsers     EventType = "ONLINE_USERS"
	EventNewRequest      EventType = "NEW_REQUEST"
	EventRefetchChats    EventType = "REFETCH_CHATS"
	EventAlert           EventType = "ALERT"
)

// Envelope is one dispatch: built fresh per broadcast and never mutated afterwards.
type Envelope struct {
	Event   EventType
	Targets []string
	Payload any
}

func NewEnvelope(event EventType, targets []string, payload any) Envelope {
	return Envelope{
		Event:   event,
		Targets: append([]string(nil), targets...),
		Payload: payload,
	}
}

type Sender struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

type Attachment struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// RealtimeMessage is the ephemeral shape shipped with NEW_MESSAGE. The
// persisted form is Message.
type RealtimeMessage struct {
	ID          string       `json:"_id"`
	Content     string       `json:"content"`
	Sender      Sender       `json:"sender"`
	ChatID      string       `json:"chat"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   string       `json:"createdAt"`
}

type NewMessagePayload struct {
	ChatID  string          `json:"chatId"`
	Message RealtimeMessage `json:"message"`
}

type ChatRefPayload struct {
	ChatID string `json:"chatId"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
}

type OnlineUsersPayload struct {
	OnlineUsers []string `json:"onlineUsers"`
	ChatID      string   `json:"chatId,omitempty"`
}

type AlertPayload struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type Chat struct {
	ID        string
	Name      string
	GroupChat bool
	Creator   string
	Members   []string
	CreatedAt int64
	UpdatedAt int64
}

func (c Chat) HasMember(userID string) bool {
	return lo.Contains(c.Members, userID)
}

// OtherMembers returns every member except userID.
func (c Chat) OtherMembers(userID string) []string {
	return lo.Without(c.Members, userID)
}

type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	Attachments []Attachment
	CreatedAt   int64
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type FriendRequest struct {
	ID         string
	SenderID   string
	ReceiverID string
	Status     RequestStatus
	CreatedAt  int64
}
