package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/identity"
)

const (
	collection = "rooms"

	// MsgAddFailed is the error recorded when a room cannot be written.
	MsgAddFailed = "Failed to add room"
)

var (
	// ErrInvalidRoomID is returned when looking up an empty identifier.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrCheckRoom wraps store failures during lookup. A missing room is not an error.
	ErrCheckRoom = errors.New("failed to check room")
)

// Room is a content record addressed by a short random identifier.
type Room struct {
	ID        string    `json:"-"`
	Content   string    `json:"content"`
	CreatorID *string   `json:"creatorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdentitySource reports who is signed in, if anyone.
type IdentitySource interface {
	CurrentUser() *identity.User
}

// Registry issues and looks up rooms.
type Registry struct {
	store docstore.Store
	users IdentitySource
	log   *zerolog.Logger
	now   func() time.Time
	newID func() (string, error)

	mu      sync.Mutex
	lastErr string
}

// NewRegistry creates a registry writing to st and tagging rooms with the identity users reports.
func NewRegistry(st docstore.Store, users IdentitySource, logger *zerolog.Logger) *Registry {
	return &Registry{
		store: st,
		users: users,
		log:   logger,
		now:   time.Now,
		newID: NewID,
	}
}

// AddRoom stores content under a fresh identifier and returns the identifier.
// The identifier is not checked against existing rooms, so a collision overwrites.
func (r *Registry) AddRoom(ctx context.Context, content string) (string, error) {
	r.setErr("")

	id, err := r.newID()
	if err != nil {
		r.setErr(MsgAddFailed)
		return "", err
	}

	rec := Room{
		Content:   content,
		CreatedAt: r.now().UTC(),
	}
	if u := r.users.CurrentUser(); u != nil {
		uid := u.UID
		rec.CreatorID = &uid
	}

	if err := r.store.Set(ctx, docstore.Doc(collection, id), rec); err != nil {
		r.log.Error().Err(err).Str("room_id", id).Msg("failed to add room")
		r.setErr(MsgAddFailed)
		return "", fmt.Errorf("add room: %w", err)
	}

	r.log.Info().Str("room_id", id).Msg("room added")
	return id, nil
}

// CheckRoom returns the room stored under id, or nil when there is none.
func (r *Registry) CheckRoom(ctx context.Context, id string) (*Room, error) {
	if id == "" {
		return nil, ErrInvalidRoomID
	}

	r.log.Debug().Str("room_id", id).Msg("checking room")

	snap, err := r.store.Get(ctx, docstore.Doc(collection, id))
	if err != nil {
		r.log.Error().Err(err).Str("room_id", id).Msg("error checking room")
		return nil, fmt.Errorf("%w: %w", ErrCheckRoom, err)
	}
	if !snap.Exists() {
		r.log.Debug().Str("room_id", id).Msg("room not found")
		return nil, nil
	}

	var rec Room
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckRoom, err)
	}
	rec.ID = id
	return &rec, nil
}

// Err returns the error recorded by the last AddRoom, or "".
func (r *Registry) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Registry) setErr(msg string) {
	r.mu.Lock()
	r.lastErr = msg
	r.mu.Unlock()
}
