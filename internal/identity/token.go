package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuerPrefix       = "https://securetoken.google.com/"
	googleSignInMethod = "google.com"
)

// Claims is the subset of a Firebase ID token the server cares about.
type Claims struct {
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	Firebase FirebaseClaims `json:"firebase"`
	jwt.RegisteredClaims
}

// FirebaseClaims holds the provider specific "firebase" claim.
type FirebaseClaims struct {
	SignInProvider string `json:"sign_in_provider,omitempty"`
}

// VerifierConfig holds the keys ID tokens may be signed with.
type VerifierConfig struct {
	ProjectID string
	Secret    []byte
	PublicKey *rsa.PublicKey
}

// Issuer returns the expected token issuer for the project.
func (c *VerifierConfig) Issuer() string {
	return issuerPrefix + c.ProjectID
}

// TokenVerifier validates Firebase-style Google ID tokens.
type TokenVerifier struct {
	cfg     VerifierConfig
	methods []string
}

// ErrMixedKeys is returned when both a shared secret and a public key are configured.
var ErrMixedKeys = errors.New("signing secret and public key are mutually exclusive")

// NewTokenVerifier builds a verifier accepting either HS256 tokens signed
// with a shared secret (emulator) or RS256 tokens signed by the public key's
// owner, never both.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project id is required")
	}

	var methods []string
	switch {
	case len(cfg.Secret) > 0 && cfg.PublicKey != nil:
		return nil, ErrMixedKeys
	case len(cfg.Secret) > 0:
		methods = []string{jwt.SigningMethodHS256.Alg()}
	case cfg.PublicKey != nil:
		methods = []string{jwt.SigningMethodRS256.Alg()}
	default:
		return nil, errors.New("no verification key configured")
	}

	return &TokenVerifier{cfg: cfg, methods: methods}, nil
}

// LoadPublicKey reads a PEM encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// Verify parses and validates an ID token and returns the identity it carries.
func (v *TokenVerifier) Verify(_ context.Context, tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithIssuer(v.cfg.Issuer()),
		jwt.WithAudience(v.cfg.ProjectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidCredential)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	if p := claims.Firebase.SignInProvider; p != "" && p != googleSignInMethod {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotAllowed, p)
	}

	return &User{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.cfg.Secret, nil
	case *jwt.SigningMethodRSA:
		return v.cfg.PublicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// GenerateToken mints an HS256 ID token for user, the way the auth emulator does.
// It is meant for local development and tests, never for production identities.
func GenerateToken(cfg *VerifierConfig, user User, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("signing secret is required")
	}

	now := time.Now()
	claims := Claims{
		Name:  user.DisplayName,
		Email: user.Email,
		Firebase: FirebaseClaims{
			SignInProvider: googleSignInMethod,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			Issuer:    cfg.Issuer(),
			Audience:  jwt.ClaimStrings{cfg.ProjectID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}
