package handler

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/store"
)

type MessageHandler struct {
	Store            *store.Store
	Broadcaster      fanout.Broadcaster
	MaxMessageLength int
}

type sendMessageBody struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments"`
}

func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	chat, err := h.Store.ChatForMember(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	before, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	msgs, err := h.Store.Messages(chat.ID, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageView(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// Send persists a message first and only then fans it out, so every
// recipient can fetch what it was told about.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if h.MaxMessageLength > 0 && utf8.RuneCountInString(body.Content) > h.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is too long"})
		return
	}

	chat, err := h.Store.ChatForMember(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.Store.AppendMessage(c.Request.Context(), chat.ID, userID, body.Content, body.Attachments)
	if err != nil {
		respondError(c, err)
		return
	}

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	live := model.RealtimeMessage{
		ID:          msg.ID,
		Content:     msg.Content,
		Sender:      model.Sender{ID: userID},
		ChatID:      chat.ID,
		Attachments: attachments,
		CreatedAt:   time.UnixMilli(msg.CreatedAt).UTC().Format(time.RFC3339Nano),
	}
	h.Broadcaster.Broadcast(model.EventNewMessage, chat.Members, model.NewMessagePayload{ChatID: chat.ID, Message: live})
	h.Broadcaster.Broadcast(model.EventNewMessageAlert, chat.Members, model.ChatRefPayload{ChatID: chat.ID})

	c.JSON(http.StatusCreated, gin.H{"message": messageView(msg)})
}
