package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avelichko/circlechat-server/internal/auth"
	"github.com/avelichko/circlechat-server/internal/config"
	"github.com/avelichko/circlechat-server/internal/core"
	"github.com/avelichko/circlechat-server/internal/service/messages"
)

// NewServer builds the HTTP server with REST routes and the WebSocket bridge.
func NewServer(hub *core.Hub, authService *auth.Service, msgService *messages.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	msgHandlers := NewMessageHandlers(msgService, hub, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		authorized := api.Group("")
		authorized.Use(AuthMiddleware(authService, logger))
		{
			authorized.POST("/messages/get", msgHandlers.History)
			authorized.POST("/messages/send", msgHandlers.Send)
			authorized.GET("/users/online", msgHandlers.Online)
		}
	}

	if cfg.MediaDir != "" && cfg.MediaBaseURL != "" {
		router.Static(cfg.MediaBaseURL, cfg.MediaDir)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
