package handler

import (
	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/model"
)

func chatView(c model.Chat) gin.H {
	return gin.H{
		"_id":       c.ID,
		"name":      c.Name,
		"groupChat": c.GroupChat,
		"creator":   c.Creator,
		"members":   c.Members,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

func messageView(m model.Message) gin.H {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	return gin.H{
		"_id":         m.ID,
		"chat":        m.ChatID,
		"sender":      gin.H{"_id": m.SenderID},
		"content":     m.Content,
		"attachments": attachments,
		"createdAt":   m.CreatedAt,
	}
}

func requestView(r model.FriendRequest) gin.H {
	return gin.H{
		"_id":       r.ID,
		"sender":    r.SenderID,
		"receiver":  r.ReceiverID,
		"status":    r.Status,
		"createdAt": r.CreatedAt,
	}
}
