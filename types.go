package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock lets callers inject a time source, mostly for tests.
type Clock func() time.Time

// AuthBackend resolves the authenticated actor and the active session mode.
// GetCurrentIdentity returns the raw payload as sent by the server; the
// shape is reconciled by Normalize. An unauthenticated response is reported
// as ErrUnauthenticated.
type AuthBackend interface {
	GetCurrentIdentity(ctx context.Context) (json.RawMessage, error)
	GetSessionMode(ctx context.Context) (*SessionMode, error)
}

// ModeSwitcher is an optional capability of AuthBackend implementations that
// can persist kid-mode changes server side. An empty profile id clears the
// mode.
type ModeSwitcher interface {
	SetSessionMode(ctx context.Context, kidProfileID string) error
}

// ProfileBackend exposes the selectable profile list and the backend-driven
// "selection required" flag.
type ProfileBackend interface {
	IsSelectionRequired(ctx context.Context) (bool, error)
	ListAvailableProfiles(ctx context.Context) ([]Profile, error)
}

// EntitlementBackend answers subscription status questions for the actor
// described by EntitlementParams.
type EntitlementBackend interface {
	GetRealTimeStatus(ctx context.Context, params EntitlementParams) (*RawSubscriptionRecord, error)
	GetCurrentSubscription(ctx context.Context, params EntitlementParams) (*RawSubscriptionRecord, error)
}

// SessionBackend confirms session terminations. The registry applies
// optimistic local mutations and rolls them back when these calls fail.
type SessionBackend interface {
	Terminate(ctx context.Context, sessionID string) error
	TerminateAllOthers(ctx context.Context) error
}

// Store is the injected durable key-value store used for the profile
// selection flag and locale fallback. It is never hard-coded to a storage
// technology; see NewPreferencesStore for the bun-backed implementation and
// NewMemoryStore for an in-process one.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SessionMode is the server's view of the active viewing context.
type SessionMode struct {
	IsKidMode        bool           `json:"is_kid_mode"`
	ActiveKidProfile *KidProfileRef `json:"active_kid_profile,omitempty"`
}

// Config holds coordinator and engine options.
type Config interface {
	GetRefreshInterval() time.Duration
	GetSelectionMadeKey() string
	GetLocaleKey() string
	GetDefaultLocale() string
	GetSyntheticAgeRating() string
}

type defConfig struct{}

func (defConfig) GetRefreshInterval() time.Duration { return 5 * time.Minute }
func (defConfig) GetSelectionMadeKey() string       { return "profile_selection_made" }
func (defConfig) GetLocaleKey() string              { return "locale" }
func (defConfig) GetDefaultLocale() string          { return "en" }

// GetSyntheticAgeRating is the rating applied to synthesized kid profiles.
// The value papers over incomplete backend data for family members flagged
// kid-dashboard; treat it as a product default, not a policy.
func (defConfig) GetSyntheticAgeRating() string { return "7+" }

// DefaultConfig returns the built-in configuration values.
func DefaultConfig() Config {
	return defConfig{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
