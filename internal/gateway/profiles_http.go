package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse/internal/domain"
	"lighthouse/internal/profiles"
	"lighthouse/pkg/api/common"
)

func (h *Handlers) listProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, common.OK(h.profiles.List()))
}

type upsertProfileRequest struct {
	Scenario   domain.Scenario     `json:"scenario" binding:"required"`
	Prompt     profiles.Prompt     `json:"prompt"`
	Thresholds profiles.Thresholds `json:"thresholds"`
}

func (h *Handlers) upsertProfile(c *gin.Context) {
	var req upsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}
	p := profiles.Profile{Scenario: req.Scenario, Prompt: req.Prompt, Thresholds: req.Thresholds}
	h.profiles.Upsert(p)
	c.JSON(http.StatusOK, common.OK(p))
}

func (h *Handlers) deleteProfile(c *gin.Context) {
	h.profiles.Delete(domain.Scenario(c.Param("id")))
	c.JSON(http.StatusOK, common.OK(gin.H{"deleted": true}))
}

// activateProfile confirms that a scenario's profile exists and returns
// it. It changes no state: the registry lookup itself already makes a
// stored profile live for new frames.
func (h *Handlers) activateProfile(c *gin.Context) {
	scenario := domain.Scenario(c.Param("id"))
	p, err := h.profiles.Get(scenario)
	if err != nil {
		c.JSON(http.StatusNotFound, common.Fail("unknown scenario"))
		return
	}
	c.JSON(http.StatusOK, common.OK(p))
}
