// Package session tracks the signed-in identity of a browser session and
// the first-time nickname onboarding that follows a Google sign-in.
//
// A Manager moves through Unchecked -> {Anonymous, Returning, New}.
// The first auth-state notification leaves Unchecked; SaveNickname moves New
// to Returning; SignOut moves any signed-in state to Anonymous.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/identity"
)

const (
	usersCollection = "users"

	// DefaultUserName is shown when neither a nickname nor a display name is known.
	DefaultUserName = "User"

	// MsgNicknameRequired is the field error for an empty nickname.
	MsgNicknameRequired = "Nickname is required."
	// MsgNicknameSaveFailed is the field error for a failed nickname write.
	MsgNicknameSaveFailed = "Failed to save nickname. Please try again."
)

var (
	// ErrNicknameRequired is returned by SaveNickname for an empty value.
	ErrNicknameRequired = errors.New("nickname is required")
	// ErrNotSignedIn is returned by SaveNickname when nobody is signed in.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrUserLookup wraps failures reading the nickname record.
	ErrUserLookup = errors.New("user lookup failed")
)

// State is a point-in-time copy of a session.
type State struct {
	User          *identity.User `json:"user"`
	IsNewUser     bool           `json:"is_new_user"`
	Nickname      string         `json:"nickname"`
	NicknameError string         `json:"nickname_error"`
	AuthChecked   bool           `json:"auth_checked"`
}

// userRecord is the users/{uid} document.
type userRecord struct {
	Nickname string `json:"nickname"`
}

// Manager owns the session state of one browser.
type Manager struct {
	auth  identity.Provider
	store docstore.Store
	log   *zerolog.Logger

	mu          sync.RWMutex
	state       State
	unsubscribe func()

	startOnce   sync.Once
	checkedOnce sync.Once
	checked     chan struct{}
}

// NewManager creates an unchecked session bound to auth and st.
func NewManager(auth identity.Provider, st docstore.Store, logger *zerolog.Logger) *Manager {
	return &Manager{
		auth:    auth,
		store:   st,
		log:     logger,
		checked: make(chan struct{}),
	}
}

// Start subscribes to auth-state changes. Only the first call subscribes.
// It returns once the first notification has been fully processed.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		unsubscribe := m.auth.OnAuthStateChanged(ctx, m.onAuthStateChanged)
		m.mu.Lock()
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	})
}

// WaitAuthChecked blocks until the first auth-state notification has been processed.
func (m *Manager) WaitAuthChecked(ctx context.Context) error {
	select {
	case <-m.checked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops listening for auth-state changes.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Manager) onAuthStateChanged(ctx context.Context, user *identity.User) {
	m.mu.Lock()
	m.setUserLocked(user)
	m.mu.Unlock()

	if user != nil {
		m.log.Debug().Str("uid", user.UID).Msg("user is logged in")
		if err := m.checkUser(ctx); err != nil {
			m.log.Warn().Err(err).Str("uid", user.UID).Msg("failed to check user record")
		}
	} else {
		m.log.Debug().Msg("no user is logged in")
	}

	m.mu.Lock()
	m.state.AuthChecked = true
	m.mu.Unlock()
	m.checkedOnce.Do(func() { close(m.checked) })
}

// setUserLocked switches the identity. Onboarding fields belong to one uid,
// so they are cleared whenever the uid changes. Callers hold m.mu.
func (m *Manager) setUserLocked(user *identity.User) {
	prev := m.state.User
	m.state.User = user
	if user == nil || prev == nil || prev.UID != user.UID {
		m.state.IsNewUser = false
		m.state.Nickname = ""
	}
}

// SignInWithGoogle signs in with a Google ID token and loads the user's record.
// A rejected credential keeps the previous state. When the record cannot be
// read the new identity is kept with no nickname and ErrUserLookup is returned.
func (m *Manager) SignInWithGoogle(ctx context.Context, credential string) error {
	m.log.Debug().Msg("attempting google sign-in")

	user, err := m.auth.SignInWithGoogle(ctx, credential)
	if err != nil {
		m.log.Warn().Err(err).Msg("google sign-in failed")
		return fmt.Errorf("sign in with google: %w", err)
	}

	m.mu.Lock()
	m.setUserLocked(user)
	m.mu.Unlock()
	m.log.Info().Str("uid", user.UID).Msg("google sign-in successful")

	if err := m.checkUser(ctx); err != nil {
		m.log.Warn().Err(err).Str("uid", user.UID).Msg("failed to check user record")
		return err
	}
	return nil
}

// SignOut signs out and clears the identity, new-user flag and nickname.
func (m *Manager) SignOut(ctx context.Context) error {
	m.log.Debug().Msg("attempting sign-out")

	if err := m.auth.SignOut(ctx); err != nil {
		m.log.Warn().Err(err).Msg("sign-out failed")
		return fmt.Errorf("sign out: %w", err)
	}

	m.mu.Lock()
	m.state.User = nil
	m.state.IsNewUser = false
	m.state.Nickname = ""
	m.mu.Unlock()

	m.log.Info().Msg("sign-out successful")
	return nil
}

// checkUser loads users/{uid} for the current identity. An existing record
// marks a returning user, a missing one a new user. Results for an identity
// that changed while the read was in flight are dropped.
func (m *Manager) checkUser(ctx context.Context) error {
	m.mu.RLock()
	user := m.state.User
	m.mu.RUnlock()
	if user == nil {
		return nil
	}

	snap, err := m.store.Get(ctx, docstore.Doc(usersCollection, user.UID))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserLookup, err)
	}

	var rec userRecord
	exists := snap.Exists()
	if exists {
		if err := snap.DataTo(&rec); err != nil {
			return fmt.Errorf("%w: %w", ErrUserLookup, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.User == nil || m.state.User.UID != user.UID {
		return nil
	}
	if exists {
		m.state.Nickname = rec.Nickname
		m.state.IsNewUser = false
		m.log.Debug().Str("uid", user.UID).Str("nickname", rec.Nickname).Msg("returning user")
	} else {
		m.state.IsNewUser = true
		m.log.Debug().Str("uid", user.UID).Msg("new user, nickname required")
	}
	return nil
}

// SaveNickname stores value as the signed-in user's nickname.
// An empty value is rejected without writing. Failures set NicknameError
// and keep the previous nickname.
func (m *Manager) SaveNickname(ctx context.Context, value string) error {
	m.log.Debug().Str("nickname", value).Msg("attempting to save nickname")

	if value == "" {
		m.setNicknameError(MsgNicknameRequired)
		return ErrNicknameRequired
	}

	m.mu.RLock()
	user := m.state.User
	m.mu.RUnlock()
	if user == nil {
		m.setNicknameError(MsgNicknameSaveFailed)
		return ErrNotSignedIn
	}

	err := m.store.Set(ctx, docstore.Doc(usersCollection, user.UID), userRecord{Nickname: value}, docstore.Merge())
	if err != nil {
		m.log.Error().Err(err).Str("uid", user.UID).Msg("error saving nickname")
		m.setNicknameError(MsgNicknameSaveFailed)
		return fmt.Errorf("save nickname: %w", err)
	}

	m.mu.Lock()
	if m.state.User != nil && m.state.User.UID == user.UID {
		m.state.Nickname = value
		m.state.IsNewUser = false
		m.state.NicknameError = ""
	}
	m.mu.Unlock()

	m.log.Info().Str("uid", user.UID).Str("nickname", value).Msg("nickname saved")
	return nil
}

// LoadUserName returns the nickname, else the provider display name, else DefaultUserName.
func (m *Manager) LoadUserName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.Nickname != "" {
		return m.state.Nickname
	}
	if m.state.User != nil && m.state.User.DisplayName != "" {
		return m.state.User.DisplayName
	}
	return DefaultUserName
}

// State returns a copy of the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (m *Manager) setNicknameError(msg string) {
	m.mu.Lock()
	m.state.NicknameError = msg
	m.mu.Unlock()
}
