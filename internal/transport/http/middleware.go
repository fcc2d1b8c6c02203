package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/session"
)

const (
	// SessionCookieName carries the browser session id.
	SessionCookieName = "roomgate_session"
	// ContextKeyClient is the context key for storing the browser session.
	ContextKeyClient = "session_client"
)

// contextKeyRegistered marks a request whose client is held by the pool.
const contextKeyRegistered = "session_registered"

// SessionBinder ties browser sessions to the session cookie. Callers without
// a known cookie get a throwaway client; it joins the pool and the cookie is
// issued only after a successful sign-in.
type SessionBinder struct {
	pool   *session.Pool
	maxAge time.Duration
	secure bool
	log    *zerolog.Logger
}

// NewSessionBinder creates a binder for pool. maxAge bounds the cookie lifetime.
func NewSessionBinder(pool *session.Pool, maxAge time.Duration, secure bool, logger *zerolog.Logger) *SessionBinder {
	return &SessionBinder{pool: pool, maxAge: maxAge, secure: secure, log: logger}
}

// Middleware attaches the caller's browser session to the context.
func (b *SessionBinder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var client *session.Client
		if id, err := c.Cookie(SessionCookieName); err == nil && id != "" {
			client, _ = b.pool.Get(id)
		}

		if client != nil {
			c.Set(contextKeyRegistered, true)
		} else {
			client = b.pool.NewClient(c.Request.Context())
		}

		c.Set(ContextKeyClient, client)
		c.Next()

		if !c.GetBool(contextKeyRegistered) {
			client.Manager.Close()
		}
	}
}

// Persist registers the request's client with the pool and sets the session
// cookie. It does nothing when the client is already registered.
func (b *SessionBinder) Persist(c *gin.Context, client *session.Client) {
	if c.GetBool(contextKeyRegistered) {
		return
	}
	b.pool.Add(client)
	c.Set(contextKeyRegistered, true)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, client.ID, int(b.maxAge.Seconds()), "/", "", b.secure, true)
	b.log.Debug().Str("session_id", client.ID).Msg("new browser session")
}

func clientFrom(c *gin.Context) *session.Client {
	v, ok := c.Get(ContextKeyClient)
	if !ok {
		return nil
	}
	client, _ := v.(*session.Client)
	return client
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
