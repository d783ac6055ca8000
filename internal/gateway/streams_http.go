package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/pkg/api/common"
)

type createStreamRequest struct {
	Name        string              `json:"name"`
	Scenario    domain.Scenario     `json:"scenario" binding:"required"`
	UserID      string              `json:"user_id"`
	Preferences *domain.Preferences `json:"preferences,omitempty"`
}

func (h *Handlers) createStream(c *gin.Context) {
	var req createStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	st, err := h.streams.Create(c.Request.Context(), req.Name, req.Scenario, req.UserID, req.Preferences)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.OK(st))
}

func (h *Handlers) listStreams(c *gin.Context) {
	c.JSON(http.StatusOK, common.OK(h.streams.ActiveList()))
}

func (h *Handlers) getStream(c *gin.Context) {
	st, ok := h.streams.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, common.Fail("stream not found"))
		return
	}
	c.JSON(http.StatusOK, common.OK(st))
}

type updateStreamRequest struct {
	Status domain.StreamStatus `json:"status" binding:"required"`
}

func (h *Handlers) updateStream(c *gin.Context) {
	var req updateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	id := c.Param("id")
	var err error
	switch req.Status {
	case domain.StreamPaused:
		err = h.streams.Pause(c.Request.Context(), id)
	case domain.StreamActive:
		err = h.streams.Resume(c.Request.Context(), id)
	case domain.StreamDisconnected:
		err = h.streams.End(c.Request.Context(), id)
	default:
		c.JSON(http.StatusBadRequest, common.Fail("unsupported status"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	st, _ := h.streams.Get(id)
	c.JSON(http.StatusOK, common.OK(st))
}

func (h *Handlers) deleteStream(c *gin.Context) {
	if err := h.streams.End(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.OK(gin.H{"ended": true}))
}

func (h *Handlers) pauseStream(c *gin.Context) {
	if err := h.streams.Pause(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.OK(gin.H{"status": domain.StreamPaused}))
}

func (h *Handlers) resumeStream(c *gin.Context) {
	if err := h.streams.Resume(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.OK(gin.H{"status": domain.StreamActive}))
}

// writeError maps an apierr.Kind to its HTTP status; anything else is a
// 500 (spec.md §7: only Store-init and socket-bind failures are fatal,
// so an un-kinded error here is an internal bug, not caller input).
func writeError(c *gin.Context, err error) {
	if ae, ok := apierr.As(err); ok {
		c.JSON(apierr.HTTPStatus(ae.Kind), common.Fail(ae.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
}
