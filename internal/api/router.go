package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/storage/blob"
)

type RouterConfig struct {
	Handler *Handler
	Metrics *metrics.Metrics
	Log     *zap.Logger
	// ImagesDir is served under /images/ when images live on local disk.
	ImagesDir string
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cfg.Metrics.Gin(cfg.Log))
	router.Use(cors())

	h := cfg.Handler
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	if cfg.ImagesDir != "" {
		router.Static(blob.URLPrefix, cfg.ImagesDir)
	}

	api := router.Group("/api")
	{
		api.POST("/signup/", h.Signup)
		api.POST("/login/", h.Login)
		api.POST("/token/", h.Login)
		api.POST("/token/refresh/", h.RefreshToken)
		api.GET("/posts/", h.ListPosts)
		api.GET("/posts/:id/", h.GetPost)
		api.POST("/chat/", h.Chat)
	}

	authed := api.Group("", h.RequireAuth)
	{
		authed.POST("/signout/", h.Signout)
		authed.GET("/me/", h.Me)
		authed.POST("/post/", h.CreatePost)
		authed.POST("/comment/", h.CreateComment)
		authed.POST("/upload/", h.Upload)
		authed.POST("/api/upload/", h.Upload)
		authed.GET("/uploads/", h.ListUploads)
		authed.POST("/escalations/", h.CreateEscalation)
		authed.GET("/escalations/", h.ListEscalations)
		authed.GET("/escalations/:id/", h.GetEscalation)
		authed.PATCH("/escalations/:id/", h.UpdateEscalation)
	}

	return router
}
