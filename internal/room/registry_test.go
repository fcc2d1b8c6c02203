package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/docstore/sqlite"
	"github.com/vovakirdan/roomgate/internal/identity"
)

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Get(context.Context, docstore.Ref) (*docstore.Snapshot, error) {
	return nil, errStoreDown
}

func (failingStore) Set(context.Context, docstore.Ref, any, ...docstore.SetOption) error {
	return errStoreDown
}

func (failingStore) Close() error { return nil }

type staticUser struct {
	user *identity.User
}

func (s staticUser) CurrentUser() *identity.User { return s.user }

func newTestRegistry(t *testing.T, st docstore.Store, user *identity.User) *Registry {
	t.Helper()
	if st == nil {
		s, err := sqlite.New(":memory:")
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		st = s
	}
	logger := zerolog.Nop()
	return NewRegistry(st, staticUser{user: user}, &logger)
}

func TestNewIDShape(t *testing.T) {
	for range 200 {
		id, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if !IsValidID(id) {
			t.Fatalf("generated id %q is not valid", id)
		}
	}
}

func TestIsValidID(t *testing.T) {
	tests := map[string]bool{
		"AbCd1234":  true,
		"abcdefgh":  true,
		"ABC123":    false,
		"AbCd12345": false,
		"AbCd-234":  false,
		"":          false,
	}
	for id, want := range tests {
		if got := IsValidID(id); got != want {
			t.Errorf("IsValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestAddRoomThenCheckRoom(t *testing.T) {
	r := newTestRegistry(t, nil, &identity.User{UID: "uid-1"})
	ctx := context.Background()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	id, err := r.AddRoom(ctx, "some content")
	if err != nil {
		t.Fatalf("add room: %v", err)
	}
	if len(id) != IDLength || !IsValidID(id) {
		t.Fatalf("unexpected id %q", id)
	}

	got, err := r.CheckRoom(ctx, id)
	if err != nil {
		t.Fatalf("check room: %v", err)
	}
	if got == nil {
		t.Fatalf("expected room to exist")
	}
	if got.ID != id || got.Content != "some content" {
		t.Fatalf("unexpected room: %+v", got)
	}
	if got.CreatorID == nil || *got.CreatorID != "uid-1" {
		t.Fatalf("expected creator uid-1, got %v", got.CreatorID)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("expected created at %v, got %v", fixed, got.CreatedAt)
	}
	if r.Err() != "" {
		t.Fatalf("expected no recorded error, got %q", r.Err())
	}
}

func TestAddRoomAnonymousHasNoCreator(t *testing.T) {
	r := newTestRegistry(t, nil, nil)
	ctx := context.Background()

	id, err := r.AddRoom(ctx, "anon")
	if err != nil {
		t.Fatalf("add room: %v", err)
	}

	got, err := r.CheckRoom(ctx, id)
	if err != nil {
		t.Fatalf("check room: %v", err)
	}
	if got == nil || got.CreatorID != nil {
		t.Fatalf("expected room without creator, got %+v", got)
	}
}

func TestCheckRoomNeverIssued(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	got, err := r.CheckRoom(context.Background(), "ZZZZ9999")
	if err != nil {
		t.Fatalf("missing room must not be an error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil room, got %+v", got)
	}
}

func TestCheckRoomEmptyID(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	if _, err := r.CheckRoom(context.Background(), ""); !errors.Is(err, ErrInvalidRoomID) {
		t.Fatalf("expected ErrInvalidRoomID, got %v", err)
	}
}

func TestCheckRoomStoreFailureIsDistinct(t *testing.T) {
	r := newTestRegistry(t, failingStore{}, nil)

	got, err := r.CheckRoom(context.Background(), "AbCd1234")
	if !errors.Is(err, ErrCheckRoom) || !errors.Is(err, errStoreDown) {
		t.Fatalf("expected ErrCheckRoom wrapping store error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil room on failure")
	}
}

func TestAddRoomStoreFailureRecordsError(t *testing.T) {
	r := newTestRegistry(t, failingStore{}, nil)

	id, err := r.AddRoom(context.Background(), "content")
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected no id on failure, got %q", id)
	}
	if r.Err() != MsgAddFailed {
		t.Fatalf("expected recorded error %q, got %q", MsgAddFailed, r.Err())
	}
}

func TestAddRoomCollisionOverwrites(t *testing.T) {
	r := newTestRegistry(t, nil, nil)
	ctx := context.Background()
	r.newID = func() (string, error) { return "SameSame", nil }

	if _, err := r.AddRoom(ctx, "first"); err != nil {
		t.Fatalf("add room: %v", err)
	}
	if _, err := r.AddRoom(ctx, "second"); err != nil {
		t.Fatalf("add room: %v", err)
	}

	got, err := r.CheckRoom(ctx, "SameSame")
	if err != nil {
		t.Fatalf("check room: %v", err)
	}
	if got == nil || got.Content != "second" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
}
