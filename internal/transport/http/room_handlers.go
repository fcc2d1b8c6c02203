package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/room"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{log: logger}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Content string `json:"content"`
}

// CreateRoomResponse carries the identifier of a new room.
type CreateRoomResponse struct {
	ID string `json:"id"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	CreatorID *string `json:"creatorId,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

// CreateRoom stores content under a new room identifier.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	id, err := client.Rooms.AddRoom(c.Request.Context(), req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: client.Rooms.Err()})
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{ID: id})
}

// GetRoom looks a room up by identifier.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	client := clientFrom(c)
	if client == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	rm, err := client.Rooms.CheckRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, room.ErrInvalidRoomID) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to check room"})
		return
	}
	if rm == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	c.JSON(http.StatusOK, RoomResponse{
		ID:        rm.ID,
		Content:   rm.Content,
		CreatorID: rm.CreatorID,
		CreatedAt: rm.CreatedAt.Format(time.RFC3339),
	})
}
