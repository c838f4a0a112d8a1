// Package rest implements the identity backends over a JSON HTTP API. One
// client satisfies every backend interface so a single base URL and session
// header configuration covers the whole pipeline.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-identity"
)

const (
	defaultIdentityPath      = "/api/me"
	defaultSessionModePath   = "/api/me/session-mode"
	defaultProfilesPath      = "/api/me/profiles"
	defaultSelectionPath     = "/api/me/profiles/selection-required"
	defaultStatusPath        = "/api/me/subscription/status"
	defaultSubscriptionPath  = "/api/me/subscription"
	defaultSessionsPath      = "/api/me/sessions"
	defaultTerminateAllPath  = "/api/me/sessions/terminate-others"
	defaultSessionHeaderName = "Authorization"
)

// Config holds the REST backend configuration.
type Config struct {
	BaseURL      string
	SessionToken string

	IdentityPath     string
	SessionModePath  string
	ProfilesPath     string
	SelectionPath    string
	StatusPath       string
	SubscriptionPath string
	SessionsPath     string
	TerminateAllPath string

	HTTPClient *http.Client
}

// Client talks to the identity HTTP API. It implements AuthBackend,
// ModeSwitcher, ProfileBackend, EntitlementBackend and SessionBackend.
type Client struct {
	config     Config
	httpClient *http.Client
}

var (
	_ identity.AuthBackend        = (*Client)(nil)
	_ identity.ModeSwitcher       = (*Client)(nil)
	_ identity.ProfileBackend     = (*Client)(nil)
	_ identity.EntitlementBackend = (*Client)(nil)
	_ identity.SessionBackend     = (*Client)(nil)
)

// New creates a REST client for the given configuration.
func New(cfg Config) *Client {
	if cfg.IdentityPath == "" {
		cfg.IdentityPath = defaultIdentityPath
	}
	if cfg.SessionModePath == "" {
		cfg.SessionModePath = defaultSessionModePath
	}
	if cfg.ProfilesPath == "" {
		cfg.ProfilesPath = defaultProfilesPath
	}
	if cfg.SelectionPath == "" {
		cfg.SelectionPath = defaultSelectionPath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = defaultStatusPath
	}
	if cfg.SubscriptionPath == "" {
		cfg.SubscriptionPath = defaultSubscriptionPath
	}
	if cfg.SessionsPath == "" {
		cfg.SessionsPath = defaultSessionsPath
	}
	if cfg.TerminateAllPath == "" {
		cfg.TerminateAllPath = defaultTerminateAllPath
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		config:     cfg,
		httpClient: client,
	}
}

// GetCurrentIdentity implements identity.AuthBackend. The payload is
// returned raw; shape reconciliation belongs to identity.Normalize.
func (c *Client) GetCurrentIdentity(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.config.IdentityPath, nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetSessionMode implements identity.AuthBackend.
func (c *Client) GetSessionMode(ctx context.Context) (*identity.SessionMode, error) {
	body, err := c.do(ctx, http.MethodGet, c.config.SessionModePath, nil, nil)
	if err != nil {
		return nil, err
	}

	mode := &identity.SessionMode{}
	if err := json.Unmarshal(body, mode); err != nil {
		return nil, clientError("session mode", err)
	}
	return mode, nil
}

// SetSessionMode implements identity.ModeSwitcher. An empty profile id
// clears the mode server side.
func (c *Client) SetSessionMode(ctx context.Context, kidProfileID string) error {
	if kidProfileID == "" {
		_, err := c.do(ctx, http.MethodDelete, c.config.SessionModePath, nil, nil)
		return err
	}

	payload := map[string]string{"kid_profile_id": kidProfileID}
	_, err := c.do(ctx, http.MethodPost, c.config.SessionModePath, payload, nil)
	return err
}

// IsSelectionRequired implements identity.ProfileBackend.
func (c *Client) IsSelectionRequired(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, c.config.SelectionPath, nil, nil)
	if err != nil {
		return false, err
	}

	var response struct {
		Required bool `json:"required"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return false, clientError("selection flag", err)
	}
	return response.Required, nil
}

// ListAvailableProfiles implements identity.ProfileBackend.
func (c *Client) ListAvailableProfiles(ctx context.Context) ([]identity.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, c.config.ProfilesPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Profiles []identity.Profile `json:"profiles"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, clientError("profile list", err)
	}
	return response.Profiles, nil
}

// GetRealTimeStatus implements identity.EntitlementBackend.
func (c *Client) GetRealTimeStatus(ctx context.Context, params identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	return c.fetchRecord(ctx, c.config.StatusPath, params)
}

// GetCurrentSubscription implements identity.EntitlementBackend.
func (c *Client) GetCurrentSubscription(ctx context.Context, params identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	return c.fetchRecord(ctx, c.config.SubscriptionPath, params)
}

func (c *Client) fetchRecord(ctx context.Context, path string, params identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	query := url.Values{}
	if params.KidProfileID != "" {
		query.Set("kid_profile_id", params.KidProfileID)
	} else if params.FamilyMemberID != "" {
		query.Set("family_member_id", params.FamilyMemberID)
	} else if params.AccountID != "" {
		query.Set("account_id", params.AccountID)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	record := &identity.RawSubscriptionRecord{}
	if err := json.Unmarshal(body, record); err != nil {
		return nil, clientError("subscription record", err)
	}
	return record, nil
}

// Terminate implements identity.SessionBackend.
func (c *Client) Terminate(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("%s/%s", c.config.SessionsPath, url.PathEscape(sessionID))
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// TerminateAllOthers implements identity.SessionBackend.
func (c *Client) TerminateAllOthers(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, c.config.TerminateAllPath, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, query url.Values) ([]byte, error) {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, clientError("request payload", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, clientError("request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.SessionToken != "" {
		req.Header.Set(defaultSessionHeaderName, "Bearer "+c.config.SessionToken)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clientError("request", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, clientError("response body", err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return nil, identity.ErrUnauthenticated.WithMetadata(map[string]any{
			"path": path,
		})
	case res.StatusCode >= 400:
		return nil, clientError("response", fmt.Errorf("status %d: %s", res.StatusCode, body))
	}

	return body, nil
}

func clientError(stage string, err error) error {
	return fmt.Errorf("identity rest client: %s: %w", stage, err)
}
