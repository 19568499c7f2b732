package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/store"
)

type RequestHandler struct {
	Store       *store.Store
	Broadcaster fanout.Broadcaster
}

type sendRequestBody struct {
	UserID string `json:"userId"`
}

type respondRequestBody struct {
	Accept *bool `json:"accept"`
}

func (h *RequestHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body sendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	req, err := h.Store.SendRequest(userID, body.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Broadcaster.Broadcast(model.EventNewRequest, []string{req.ReceiverID}, "New friend request received")
	c.JSON(http.StatusCreated, gin.H{"request": requestView(req)})
}

func (h *RequestHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	reqs := h.Store.PendingRequests(userID)
	resp := make([]gin.H, 0, len(reqs))
	for _, r := range reqs {
		resp = append(resp, requestView(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": resp})
}

func (h *RequestHandler) Respond(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body respondRequestBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Accept == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Accept or reject is required"})
		return
	}

	req, chat, err := h.Store.RespondRequest(c.Param("id"), userID, *body.Accept)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"request": requestView(req)}
	if chat != nil {
		h.Broadcaster.Broadcast(model.EventRefetchChats, []string{req.SenderID}, "Friend request accepted")
		resp["chat"] = chatView(*chat)
	}
	c.JSON(http.StatusOK, resp)
}
