package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/middleware"
)

type RouterDeps struct {
	Auth            *AuthHandler
	Documents       *DocumentHandler
	Chat            *ChatHandler
	Budget          *BudgetHandler
	Files           *FileHandler
	Health          *HealthHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Check)
	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	if deps.RateLimitWindow > 0 {
		authGroup.Use(middleware.RateLimit(deps.RateLimitWindow))
	}
	authGroup.GET("/auth/me", deps.Auth.Me)

	authGroup.POST("/files", deps.Files.Upload)

	authGroup.POST("/documents", deps.Documents.Create)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)

	authGroup.POST("/chat", deps.Chat.Chat)
	authGroup.GET("/chat/history", deps.Chat.History)
	authGroup.DELETE("/chat/history", deps.Chat.ClearHistory)

	authGroup.GET("/budget", deps.Budget.Status)
}
