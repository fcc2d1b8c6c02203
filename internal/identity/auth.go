package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Auth is the identity state of a single browser session.
//
// Listeners are called synchronously, one change at a time, so every
// listener observes changes in the order they happened. A listener must not
// call SignInWithGoogle or SignOut on the same Auth.
type Auth struct {
	verifier Verifier
	log      *zerolog.Logger

	mu      sync.RWMutex
	current *User

	// deliverMu serializes state changes together with their delivery.
	deliverMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
}

// NewAuth creates a signed-out Auth that verifies credentials with v.
func NewAuth(v Verifier, logger *zerolog.Logger) *Auth {
	return &Auth{
		verifier:  v,
		log:       logger,
		listeners: make(map[uint64]Listener),
	}
}

// CurrentUser returns a copy of the signed-in identity or nil.
func (a *Auth) CurrentUser() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.clone()
}

// SignInWithGoogle verifies a Google ID token and makes its identity current.
// On failure the previous identity is kept.
func (a *Auth) SignInWithGoogle(ctx context.Context, credential string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := a.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}

	a.setCurrent(ctx, user)
	a.log.Debug().Str("uid", user.UID).Msg("identity signed in")
	return user.clone(), nil
}

// SignOut clears the current identity.
func (a *Auth) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.setCurrent(ctx, nil)
	a.log.Debug().Msg("identity signed out")
	return nil
}

// OnAuthStateChanged registers l and immediately delivers the current identity to it.
func (a *Auth) OnAuthStateChanged(ctx context.Context, l Listener) func() {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.listenersMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	a.listenersMu.Unlock()

	l(ctx, a.CurrentUser())

	return func() {
		a.listenersMu.Lock()
		delete(a.listeners, id)
		a.listenersMu.Unlock()
	}
}

func (a *Auth) setCurrent(ctx context.Context, user *User) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.mu.Lock()
	a.current = user.clone()
	a.mu.Unlock()

	a.listenersMu.Lock()
	snapshot := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		snapshot = append(snapshot, l)
	}
	a.listenersMu.Unlock()

	for _, l := range snapshot {
		l(ctx, user.clone())
	}
}

var _ Provider = (*Auth)(nil)
