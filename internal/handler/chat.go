package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/store"
)

// ChatHandler serves chat and membership routes and tells affected users
// through the Broadcaster once the store has accepted a change.
type ChatHandler struct {
	Store       *store.Store
	Broadcaster fanout.Broadcaster
	Log         *slog.Logger
}

type createGroupBody struct {
	Name         string   `json:"name" binding:"required"`
	OtherMembers []string `json:"otherMembers" binding:"required"`
}

type renameBody struct {
	Name string `json:"name" binding:"required"`
}

type addMembersBody struct {
	Members []string `json:"members" binding:"required"`
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	chats := h.Store.ChatsFor(userID)
	resp := make([]gin.H, 0, len(chats))
	for _, chat := range chats {
		resp = append(resp, chatView(chat))
	}
	c.JSON(http.StatusOK, gin.H{"chats": resp})
}

func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body createGroupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	chat, err := h.Store.CreateGroup(userID, body.Name, body.OtherMembers)
	if err != nil {
		respondError(c, err)
		return
	}

	notice := fmt.Sprintf("Welcome to %s group chat", chat.Name)
	h.Broadcaster.Broadcast(model.EventAlert, chat.Members, model.AlertPayload{ChatID: chat.ID, Message: notice})
	h.Broadcaster.Broadcast(model.EventRefetchChats, chat.OtherMembers(userID), nil)
	h.systemMessage(c.Request.Context(), chat.ID, userID, notice)

	c.JSON(http.StatusCreated, gin.H{"chat": chatView(chat)})
}

func (h *ChatHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	chat, err := h.Store.ChatForMember(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chatView(chat)})
}

func (h *ChatHandler) Rename(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	chat, err := h.Store.RenameGroup(c.Param("id"), userID, body.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Broadcaster.Broadcast(model.EventRefetchChats, chat.Members, nil)
	c.JSON(http.StatusOK, gin.H{"chat": chatView(chat)})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	chat, err := h.Store.DeleteChat(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Broadcaster.Broadcast(model.EventRefetchChats, chat.Members, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ChatHandler) AddMembers(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body addMembersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	chat, added, err := h.Store.AddMembers(c.Param("id"), userID, body.Members)
	if err != nil {
		respondError(c, err)
		return
	}

	notice := fmt.Sprintf("%s has been added in the group", strings.Join(added, ","))
	h.Broadcaster.Broadcast(model.EventAlert, chat.Members, model.AlertPayload{ChatID: chat.ID, Message: notice})
	h.Broadcaster.Broadcast(model.EventRefetchChats, added, nil)
	h.systemMessage(c.Request.Context(), chat.ID, userID, notice)

	c.JSON(http.StatusOK, gin.H{"chat": chatView(chat)})
}

func (h *ChatHandler) RemoveMember(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	memberID := c.Param("userId")
	chat, err := h.Store.RemoveMember(c.Param("id"), userID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}

	notice := fmt.Sprintf("User %s has been removed from the group", memberID)
	h.Broadcaster.Broadcast(model.EventAlert, chat.Members, model.AlertPayload{ChatID: chat.ID, Message: notice})
	h.Broadcaster.Broadcast(model.EventRefetchChats, []string{memberID}, nil)
	h.systemMessage(c.Request.Context(), chat.ID, userID, notice)

	c.JSON(http.StatusOK, gin.H{"chat": chatView(chat)})
}

func (h *ChatHandler) Leave(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	chat, err := h.Store.LeaveGroup(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	if len(chat.Members) > 0 {
		notice := fmt.Sprintf("%s, I am leaving the group", userID)
		h.Broadcaster.Broadcast(model.EventAlert, chat.Members, model.AlertPayload{ChatID: chat.ID, Message: notice})
		h.systemMessage(c.Request.Context(), chat.ID, userID, notice)
	}
	h.Broadcaster.Broadcast(model.EventRefetchChats, []string{userID}, nil)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// systemMessage records a membership notice in the chat history. A failure
// is logged and does not fail the request.
func (h *ChatHandler) systemMessage(ctx context.Context, chatID, senderID, content string) {
	if _, err := h.Store.AppendMessage(ctx, chatID, senderID, content, nil); err != nil {
		h.log().Warn("system message not stored", "chatId", chatID, "error", err)
	}
}

func (h *ChatHandler) log() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}
