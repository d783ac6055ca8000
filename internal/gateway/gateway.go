// Package gateway exposes the HTTP/JSON and WebSocket surfaces described
// in spec.md §6: stream and profile CRUD, the review-flag action
// endpoint, notification subscription registration, status/health, the
// per-stream frame ingest socket, and the signaling relay (SPEC_FULL.md
// component: Public Gateway). Grounded on
// api_realtime/internal/handlers/handlers.go's handler-struct-wrapping-
// collaborators shape.
package gateway

import (
	"time"

	"github.com/gin-gonic/gin"

	"lighthouse/internal/escalation"
	"lighthouse/internal/notify"
	"lighthouse/internal/pipeline"
	"lighthouse/internal/profiles"
	"lighthouse/internal/review"
	"lighthouse/internal/signaling"
	"lighthouse/internal/store"
	"lighthouse/internal/streams"
	"lighthouse/pkg/auth"
	"lighthouse/pkg/logging"
)

// Handlers wraps every collaborator the gateway's routes dispatch into.
type Handlers struct {
	store     *store.Store
	streams   *streams.Manager
	pipeline  *pipeline.Pipeline
	profiles  *profiles.Registry
	review    *review.Queue
	notifier  *notify.Notifier
	engine    *escalation.Engine
	signaling *signaling.Switch
	logger    logging.Logger
	startTime time.Time

	broadcaster *Broadcaster
	jwtSecret   []byte
}

// New builds a Handlers instance around a Broadcaster constructed (and
// already wired into the Pipeline and Escalation Engine) by the caller,
// since both of those are built before Handlers can exist. jwtSecret
// signs/validates the reviewer and operator bearer tokens the review
// routes require (spec.md §4.7).
func New(
	st *store.Store,
	sm *streams.Manager,
	pl *pipeline.Pipeline,
	reg *profiles.Registry,
	rq *review.Queue,
	notifier *notify.Notifier,
	engine *escalation.Engine,
	sw *signaling.Switch,
	broadcaster *Broadcaster,
	jwtSecret []byte,
	logger logging.Logger,
) *Handlers {
	return &Handlers{
		store:       st,
		streams:     sm,
		pipeline:    pl,
		profiles:    reg,
		review:      rq,
		notifier:    notifier,
		engine:      engine,
		signaling:   sw,
		broadcaster: broadcaster,
		jwtSecret:   jwtSecret,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// RegisterRoutes mounts every route from spec.md §6 on router, which is
// assumed to already carry the common middleware chain from
// pkg/server.SetupServiceRouter.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/status", h.handleStatus)
	api.GET("/health", h.handleHealth)

	api.GET("/streams", h.listStreams)
	api.POST("/streams", h.createStream)
	api.GET("/streams/:id", h.getStream)
	api.PATCH("/streams/:id", h.updateStream)
	api.DELETE("/streams/:id", h.deleteStream)
	api.POST("/streams/:id/pause", h.pauseStream)
	api.POST("/streams/:id/resume", h.resumeStream)

	api.GET("/profiles", h.listProfiles)

	operator := api.Group("", auth.ReviewerAuthMiddleware(h.jwtSecret))
	operator.POST("/profiles", h.upsertProfile)
	operator.DELETE("/profiles/:id", h.deleteProfile)
	operator.POST("/profiles/:id/activate", h.activateProfile)

	reviewerRoutes := api.Group("/review", auth.ReviewerAuthMiddleware(h.jwtSecret))
	reviewerRoutes.GET("/flags", h.listReviewFlags)
	reviewerRoutes.POST("/flags", h.claimReviewFlag)
	reviewerRoutes.POST("/flags/:id/action", h.actionReviewFlag)

	api.POST("/notifications/subscribe/push", h.subscribePush)
	api.POST("/notifications/subscribe/sms", h.subscribeSMS)
	api.POST("/notifications/subscribe/telegram", h.subscribeTelegram)

	router.GET("/ws/stream/:id", h.serveStreamWS)
	router.GET("/signaling", h.serveSignalingWS)
}
