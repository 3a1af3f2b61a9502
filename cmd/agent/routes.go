package main

import (
	"errors"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/inquiry"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/session"
	"voice-agent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, manager *session.Manager, store inquiry.Store, rdb *redis.Client, authMW gin.HandlerFunc) {
	log := manager.Logger()

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	webhook := telephony.InboundCallHandler{
		Launcher:  manager,
		Redis:     rdb,
		LatchTTL:  cfg.Session.MaxCallDuration,
		StreamURL: cfg.Session.StreamPublicURL,
	}
	r.POST("/webhooks/telephony/voice", webhook.HandleInboundCall)

	// Bidirectional turn stream opened by the telephony bridge after the
	// call is accepted.
	stream := telephony.NewStreamHandler(manager.Resolve, log)
	r.GET("/stream", stream.HandleStream)

	// protected operator surface
	operator := r.Group("/v1/operator")
	operator.Use(authMW)
	operator.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor))
	{
		operator.GET("/sessions", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"sessions": manager.Snapshots()})
		})

		operator.GET("/sessions/:id", func(c *gin.Context) {
			orch, err := manager.Get(c.Param("id"))
			if errors.Is(err, session.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusOK, orch.Snapshot())
		})

		operator.POST("/sessions/:id/shutdown", func(c *gin.Context) {
			orch, err := manager.Get(c.Param("id"))
			if errors.Is(err, session.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}

			operatorID, _ := auth.OperatorID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			orch.Shutdown(c.Request.Context(), operatorID, role)

			c.JSON(http.StatusOK, orch.Snapshot())
		})

		// Latest inquiry for a caller identity, e.g. to brief an agent
		// taking over after the call.
		operator.GET("/inquiries/latest", func(c *gin.Context) {
			identity := c.Query("identity")
			if identity == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "identity query parameter required"})
				return
			}

			rec, found, err := store.FindLatestByKey(c.Request.Context(), identity)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
				return
			}
			if !found {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no inquiry for identity"})
				return
			}
			c.JSON(http.StatusOK, rec)
		})
	}
}
