package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-core/internal/auth"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
)

// RegisterDebugRoutes wires dev-only endpoints: seeding directory users,
// minting short-lived tokens and exercising the audit pipeline.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, tokens *auth.JWT, users repositories.UserRepository, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/users", func(c *gin.Context) {
		var user models.User
		if err := c.ShouldBindJSON(&user); err != nil || user.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user"})
			return
		}
		if err := users.UpsertUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/token", func(c *gin.Context) {
		var req struct {
			UserID string `json:"userId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := tokens.Issue(req.UserID, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "audit_test", "debug audit probe", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
