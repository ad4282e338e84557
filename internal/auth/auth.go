// Package auth resolves who the current user is: the client reads a token
// from TADA_TOKEN or ~/.tada/credentials.json, the server reads it from the
// Authorization header. The user id is the token's JWT subject, or the
// token itself when it is opaque.
package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/idilsaglam/tada/internal/backend"
)

const credFileName = "credentials.json"

// ErrNotLoggedIn means no token is configured.
var ErrNotLoggedIn = errors.New("not logged in (run `tada auth login`)")

type TokenInfo struct {
	Token     string     `json:"token"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"` // optional (JWT or server-provided)
}

// Subject is the user id carried by the token.
func (ti *TokenInfo) Subject() string { return Subject(ti.Token) }

// Expired reports whether the token has a known expiry before now.
func (ti *TokenInfo) Expired(now time.Time) bool {
	return ti.ExpiresAt != nil && !now.Before(*ti.ExpiresAt)
}

// Credentials stores the token under Dir.
type Credentials struct {
	Dir string
}

// DefaultDir is ~/.tada.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada"), nil
}

// Default stores credentials in DefaultDir.
func Default() (*Credentials, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return &Credentials{Dir: dir}, nil
}

func (c *Credentials) path() string { return filepath.Join(c.Dir, credFileName) }

// Get returns the active token, or nil when not logged in. TADA_TOKEN
// overrides the file.
func (c *Credentials) Get() (*TokenInfo, error) {
	env := strings.TrimSpace(os.Getenv("TADA_TOKEN"))
	if env != "" {
		tok := stripBearer(env)
		return &TokenInfo{Token: tok, Source: "env", ExpiresAt: expiry(tok)}, nil
	}

	b, err := os.ReadFile(c.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	return &ti, nil
}

// Set saves token. A nil expires falls back to the JWT exp claim.
func (c *Credentials) Set(token string, expires *time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("empty token")
	}
	// ensure the directory exists with 0700
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if expires == nil {
		expires = expiry(token)
	}
	ti := TokenInfo{
		Token:     token,
		Source:    "file",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p := c.path()
	if err := atomic.WriteFile(p, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	// owner-only; atomic.WriteFile keeps the temp file's mode
	if err := os.Chmod(p, 0o600); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	return nil
}

// Delete removes the saved token. Missing files are fine.
func (c *Credentials) Delete() error {
	if err := os.Remove(c.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// CurrentUser implements backend.Identity for the local user.
func (c *Credentials) CurrentUser(context.Context) (string, error) {
	ti, err := c.Get()
	if err != nil {
		return "", err
	}
	if ti == nil || ti.Token == "" {
		return "", ErrNotLoggedIn
	}
	return ti.Subject(), nil
}

var _ backend.Identity = (*Credentials)(nil)

// Subject extracts the JWT "sub" claim without verifying the signature.
// Anything that is not a JWT is treated as an opaque user id.
func Subject(token string) string {
	token = stripBearer(strings.TrimSpace(token))
	var claims struct {
		Sub string `json:"sub"`
	}
	if decodeClaims(token, &claims) && claims.Sub != "" {
		return claims.Sub
	}
	return token
}

func expiry(token string) *time.Time {
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if !decodeClaims(token, &claims) || claims.Exp == 0 {
		return nil
	}
	t := time.Unix(claims.Exp, 0).UTC()
	return &t
}

func decodeClaims(token string, v any) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}

type userKey struct{}

// WithUser attaches a user id to ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user id attached by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userKey{}).(string)
	return uid, ok && uid != ""
}

// FromRequest reads the caller's user id from the Authorization header.
func FromRequest(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", false
	}
	uid := Subject(h)
	return uid, uid != ""
}

// ContextIdentity reads the user id attached to the request context. The
// server uses it so one dispatcher can serve every caller.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (string, error) {
	uid, ok := UserFrom(ctx)
	if !ok {
		return "", ErrNotLoggedIn
	}
	return uid, nil
}
