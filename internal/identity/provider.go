package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredential is returned when an ID token fails verification.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrProviderNotAllowed is returned for tokens minted by a sign-in provider other than Google.
	ErrProviderNotAllowed = errors.New("sign-in provider not allowed")
)

// User is the identity the provider reports for a signed-in browser.
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Listener receives the current identity, or nil when signed out.
// ctx belongs to the operation that caused the change.
type Listener func(ctx context.Context, user *User)

// Provider is the identity service a session talks to.
type Provider interface {
	// SignInWithGoogle exchanges a Google credential for a signed-in identity.
	SignInWithGoogle(ctx context.Context, credential string) (*User, error)

	// SignOut clears the signed-in identity.
	SignOut(ctx context.Context) error

	// CurrentUser returns the signed-in identity or nil.
	CurrentUser() *User

	// OnAuthStateChanged registers l for identity changes. l is called once
	// with the current identity before OnAuthStateChanged returns.
	OnAuthStateChanged(ctx context.Context, l Listener) (unsubscribe func())
}

// Verifier turns a credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*User, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, credential string) (*User, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, credential string) (*User, error) {
	return f(ctx, credential)
}
