package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/config"
	handlers "github.com/reviewrelay/reviewrelay/internal/http/api/front/handlers"
	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/models"
	"github.com/reviewrelay/reviewrelay/internal/plan"
	"github.com/reviewrelay/reviewrelay/internal/quota"
	"github.com/reviewrelay/reviewrelay/internal/security"
	"github.com/reviewrelay/reviewrelay/internal/usage"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers user-facing routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, registry *plan.Registry, checker *quota.Checker, ledger *usage.Ledger, jobStore *jobs.Store) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	frontGroup := r.Group("/v0")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	frontGroup.POST("/auth/login", authHandler.Login)

	planHandler := handlers.NewPlanHandler(registry)
	frontGroup.GET("/plans", planHandler.List)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	chatHandler := handlers.NewChatHandler(checker, ledger)
	authed.POST("/chat", chatHandler.Chat)

	quotaHandler := handlers.NewQuotaHandler(checker)
	authed.GET("/quota", quotaHandler.Get)

	jobHandler := handlers.NewJobHandler(jobStore)
	authed.GET("/jobs", jobHandler.List)
	authed.GET("/jobs/:id", jobHandler.Get)
}

// userAuthMiddleware validates user JWTs and loads the user context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
