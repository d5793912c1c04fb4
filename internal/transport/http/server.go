package http

import (
	"github.com/gin-gonic/gin"

	"chatpdf/internal/bootstrap"
	"chatpdf/internal/transport/http/handler"
	"chatpdf/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	checks := make(map[string]handler.Check)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}

	return newRouter(routerDeps{
		ginMode:        app.Config.App.GinMode,
		jwtSecret:      app.Config.Auth.JWTSecret,
		maxUploadBytes: app.Config.App.MaxUploadBytes,
		health:         handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks),
		documents:      handler.NewDocumentHandler(app.Documents, app.Logger),
		chat:           handler.NewChatHandler(app.Chat, app.Logger),
	})
}

type routerDeps struct {
	ginMode        string
	jwtSecret      string
	maxUploadBytes int64
	health         *handler.HealthHandler
	documents      *handler.DocumentHandler
	chat           *handler.ChatHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	if deps.ginMode != "" {
		gin.SetMode(deps.ginMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", deps.health.Check)

	v1 := router.Group("/api/v1")
	documents := v1.Group("/documents")
	documents.Use(middleware.AuthJWT(deps.jwtSecret))
	documents.POST("", deps.documents.Register)
	// Multipart overhead on top of the file itself.
	documents.POST("/upload", middleware.LimitBody(deps.maxUploadBytes+1<<20), deps.documents.Upload)
	documents.GET("", deps.documents.List)
	documents.GET("/:id", deps.documents.Get)
	documents.DELETE("/:id", deps.documents.Delete)
	documents.POST("/:id/reprocess", deps.documents.Reprocess)
	documents.GET("/:id/messages", deps.documents.Messages)
	documents.POST("/:id/context", deps.chat.Context)
	documents.POST("/:id/chat", deps.chat.Stream)

	return router
}
