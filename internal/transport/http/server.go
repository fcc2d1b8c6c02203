package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/roomgate/internal/config"
	"github.com/vovakirdan/roomgate/internal/session"
)

// NewServer builds the HTTP server with all routes.
func NewServer(pool *session.Pool, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(newIPRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, logger).Middleware())

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	api.GET("/config", configHandler(cfg.Firebase))

	binder := NewSessionBinder(pool, cfg.SessionIdleTimeout, cfg.SecureCookies, logger)
	sessionHandlers := NewSessionHandlers(binder, logger)
	roomHandlers := NewRoomHandlers(logger)

	browser := api.Group("")
	browser.Use(binder.Middleware())
	{
		browser.GET("/session", sessionHandlers.GetSession)
		browser.POST("/auth/google", sessionHandlers.SignInWithGoogle)
		browser.POST("/auth/signout", sessionHandlers.SignOut)
		browser.PUT("/session/nickname", sessionHandlers.SaveNickname)

		browser.POST("/rooms", roomHandlers.CreateRoom)
		browser.GET("/rooms/:id", roomHandlers.GetRoom)
	}

	var handler stdhttp.Handler = router
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler(router)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// configHandler serves the public client configuration the front end initializes its SDK with.
// GET /api/config
func configHandler(fb config.Firebase) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, fb)
	}
}
