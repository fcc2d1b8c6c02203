package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/identity"
	"github.com/vovakirdan/roomgate/internal/session"
)

// SessionHandlers provides HTTP handlers for sign-in and nickname onboarding.
type SessionHandlers struct {
	binder *SessionBinder
	log    *zerolog.Logger
}

// NewSessionHandlers creates a new session handlers instance.
func NewSessionHandlers(binder *SessionBinder, logger *zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{binder: binder, log: logger}
}

// GoogleSignInRequest represents the Google sign-in request body.
type GoogleSignInRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// NicknameRequest represents the save nickname request body.
type NicknameRequest struct {
	Nickname string `json:"nickname"`
}

// SessionResponse is the session state plus the name to greet the user with.
type SessionResponse struct {
	session.State
	DisplayName string `json:"display_name"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func sessionResponse(m *session.Manager) SessionResponse {
	return SessionResponse{
		State:       m.State(),
		DisplayName: m.LoadUserName(),
	}
}

// GetSession returns the caller's session state.
// GET /api/session
func (h *SessionHandlers) GetSession(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(client.Manager))
}

// SignInWithGoogle signs the session in with a Google ID token.
// POST /api/auth/google
func (h *SessionHandlers) SignInWithGoogle(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	var req GoogleSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid sign-in request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := client.Manager.SignInWithGoogle(c.Request.Context(), req.Credential)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrInvalidCredential), errors.Is(err, identity.ErrProviderNotAllowed):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credential"})
		return
	case errors.Is(err, session.ErrUserLookup):
		// Signed in, but the record could not be read. The session still starts.
		h.log.Error().Err(err).Str("session_id", client.ID).Msg("user lookup failed after sign-in")
	default:
		h.log.Error().Err(err).Str("session_id", client.ID).Msg("failed to sign in")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.binder.Persist(c, client)
	c.JSON(http.StatusOK, sessionResponse(client.Manager))
}

// SignOut signs the session out.
// POST /api/auth/signout
func (h *SessionHandlers) SignOut(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := client.Manager.SignOut(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Str("session_id", client.ID).Msg("failed to sign out")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(client.Manager))
}

// SaveNickname stores the signed-in user's nickname.
// PUT /api/session/nickname
func (h *SessionHandlers) SaveNickname(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	var req NicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid nickname request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := client.Manager.SaveNickname(c.Request.Context(), req.Nickname)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, sessionResponse(client.Manager))
	case errors.Is(err, session.ErrNicknameRequired):
		c.JSON(http.StatusBadRequest, sessionResponse(client.Manager))
	case errors.Is(err, session.ErrNotSignedIn):
		c.JSON(http.StatusUnauthorized, sessionResponse(client.Manager))
	default:
		c.JSON(http.StatusInternalServerError, sessionResponse(client.Manager))
	}
}
