package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/internal/review"
	"lighthouse/pkg/api/common"
	"lighthouse/pkg/auth"
)

// redactFlag hides a tier-3/4 flag's real stream_id behind a stable hash
// for callers ReviewerAuthMiddleware did not mark privileged (spec.md §4.7).
func redactFlag(c *gin.Context, f *domain.ContentFlag) domain.ContentFlag {
	out := *f
	out.StreamID = review.ViewStreamID(f.StreamID, f.Tier, auth.Privileged(c))
	return out
}

func (h *Handlers) listReviewFlags(c *gin.Context) {
	flags, err := h.store.ListPendingFlags(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]domain.ContentFlag, 0, len(flags))
	for _, f := range flags {
		out = append(out, redactFlag(c, f))
	}
	c.JSON(http.StatusOK, common.OK(out))
}

type claimFlagRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

func (h *Handlers) claimReviewFlag(c *gin.Context) {
	var req claimFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	item, err := h.review.Next(c.Request.Context(), req.ReviewerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, common.OK(nil))
		return
	}
	out := *item
	out.ContentFlag = redactFlag(c, &item.ContentFlag)
	c.JSON(http.StatusOK, common.OK(out))
}

type flagActionRequest struct {
	Action     string `json:"action" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Notes      string `json:"notes"`
}

// actionToDecision maps spec.md §6's three HTTP-exposed actions onto the
// Review Queue's four-valued Decision; ban has no action here, and only
// a direct in-process call to review.Queue.Submit can apply it.
func actionToDecision(action string) (domain.Decision, bool) {
	switch action {
	case "approve":
		return domain.DecisionSafe, true
	case "reject":
		return domain.DecisionBlock, true
	case "escalate":
		return domain.DecisionEscalate, true
	default:
		return "", false
	}
}

func (h *Handlers) actionReviewFlag(c *gin.Context) {
	var req flagActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail("invalid request body"))
		return
	}

	decision, ok := actionToDecision(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, common.Fail("unsupported action"))
		return
	}

	if err := h.review.Submit(c.Request.Context(), c.Param("id"), req.ReviewerID, decision, req.Notes); err != nil {
		if ae, isAE := apierr.As(err); isAE {
			c.JSON(apierr.HTTPStatus(ae.Kind), common.Fail(ae.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OK(gin.H{"action": req.Action}))
}
