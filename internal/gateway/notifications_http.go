package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lighthouse/internal/domain"
	"lighthouse/pkg/api/common"
)

type subscribePushRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	P256dh   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

func (h *Handlers) subscribePush(c *gin.Context) {
	var req subscribePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	sub := domain.PushSubscription{
		ID: uuid.NewString(), UserID: req.UserID, Endpoint: req.Endpoint,
		P256dh: req.P256dh, Auth: req.Auth, CreatedAt: time.Now(),
	}
	if err := h.store.UpsertPushSubscription(c.Request.Context(), &sub); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.OK(sub))
}

type subscribeSMSRequest struct {
	UserID string `json:"user_id" binding:"required"`
	E164   string `json:"e164" binding:"required"`
}

func (h *Handlers) subscribeSMS(c *gin.Context) {
	var req subscribeSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	r := domain.SMSRecipient{ID: uuid.NewString(), UserID: req.UserID, E164: req.E164, CreatedAt: time.Now()}
	if err := h.store.UpsertSMSRecipient(c.Request.Context(), &r); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.OK(r))
}

type subscribeTelegramRequest struct {
	UserID string `json:"user_id" binding:"required"`
	ChatID string `json:"chat_id" binding:"required"`
}

func (h *Handlers) subscribeTelegram(c *gin.Context) {
	var req subscribeTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	r := domain.ChatRecipient{ID: uuid.NewString(), UserID: req.UserID, ChatID: req.ChatID, CreatedAt: time.Now()}
	if err := h.store.UpsertChatRecipient(c.Request.Context(), &r); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.OK(r))
}
