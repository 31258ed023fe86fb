package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aussieverify/aussieverify/config"
	"github.com/aussieverify/aussieverify/types"
)

// ErrNoSession is returned by authenticated calls made without a session.
var ErrNoSession = errors.New("not signed in")

// HTTPClient talks to the backend over HTTP, carrying the publishable API
// key and the bearer session. The session is cached in a token file so it
// survives between invocations.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	tokenFile string
	http      *http.Client
	events    *broadcaster

	mu      sync.RWMutex
	session *Session
}

// NewHTTPClient constructs a client from config and restores any cached
// session. The config must be Configured; callers degrade otherwise.
func NewHTTPClient(cfg config.ClientConfig) (*HTTPClient, error) {
	if !cfg.Configured() {
		return nil, errors.New("api url and api key are required")
	}

	c := &HTTPClient{
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		apiKey:    cfg.APIKey,
		tokenFile: cfg.TokenFile,
		http:      &http.Client{Timeout: 30 * time.Second},
		events:    newBroadcaster(),
	}
	c.restoreSession()
	return c, nil
}

// sessionResponse mirrors the backend auth payload.
type sessionResponse struct {
	Token    string     `json:"token"`
	User     types.User `json:"user"`
	Recovery bool       `json:"recovery"`
}

// Register creates an account. A 202 means the backend wants email
// confirmation first; no session is established.
func (c *HTTPClient) Register(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	status, payload, err := c.do(ctx, http.MethodPost, "/auth/register", body, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAccepted {
		return nil, nil
	}

	var resp sessionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid register response: %w", err)
	}
	return c.establish(resp), nil
}

// Login signs in and establishes a session.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	_, payload, err := c.do(ctx, http.MethodPost, "/auth/login", body, false)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid login response: %w", err)
	}
	return c.establish(resp), nil
}

// Logout discards the session. The backend call is best-effort; the local
// session is dropped regardless.
func (c *HTTPClient) Logout(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, true)
	c.drop()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	return nil
}

// CurrentSession returns the held session, or nil.
func (c *HTTPClient) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	copied := *c.session
	return &copied
}

// SendReset asks the backend to mail a recovery link. The response is the
// same whether or not the address has an account.
func (c *HTTPClient) SendReset(ctx context.Context, email string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/auth/forgot", map[string]string{"email": email}, false)
	return err
}

// ExchangeRecovery trades the emailed token for a recovery-scoped session.
func (c *HTTPClient) ExchangeRecovery(ctx context.Context, token string) (*Session, error) {
	_, payload, err := c.do(ctx, http.MethodPost, "/auth/recovery", map[string]string{"token": token}, false)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid recovery response: %w", err)
	}
	return c.establish(resp), nil
}

// UpdatePassword replaces the credential. The backend answers with a fresh
// full session, replacing any recovery-scoped one.
func (c *HTTPClient) UpdatePassword(ctx context.Context, newPassword string) (*Session, error) {
	body := map[string]string{"new_password": newPassword}

	_, payload, err := c.do(ctx, http.MethodPost, "/auth/password", body, true)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid password response: %w", err)
	}
	return c.establish(resp), nil
}

// Profile fetches the caller's profile.
func (c *HTTPClient) Profile(ctx context.Context) (types.Profile, error) {
	_, payload, err := c.do(ctx, http.MethodGet, "/portal/profile", nil, true)
	if err != nil {
		return types.Profile{}, err
	}

	var profile types.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return types.Profile{}, fmt.Errorf("invalid profile response: %w", err)
	}
	return profile, nil
}

// SaveProfile upserts the caller's profile.
func (c *HTTPClient) SaveProfile(ctx context.Context, profile types.Profile) (types.Profile, error) {
	body := map[string]string{
		"org_name": profile.OrgName,
		"role":     profile.Role,
		"phone":    profile.Phone,
		"region":   profile.Region,
	}

	_, payload, err := c.do(ctx, http.MethodPut, "/portal/profile", body, true)
	if err != nil {
		return types.Profile{}, err
	}

	var saved types.Profile
	if err := json.Unmarshal(payload, &saved); err != nil {
		return types.Profile{}, fmt.Errorf("invalid profile response: %w", err)
	}
	return saved, nil
}

// Verifications fetches the caller's records, newest first.
func (c *HTTPClient) Verifications(ctx context.Context) ([]types.Verification, error) {
	_, payload, err := c.do(ctx, http.MethodGet, "/portal/verifications", nil, true)
	if err != nil {
		return nil, err
	}

	var records []types.Verification
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("invalid verifications response: %w", err)
	}
	return records, nil
}

// AddVerification inserts one record.
func (c *HTTPClient) AddVerification(ctx context.Context, draft types.VerificationDraft) (types.Verification, error) {
	_, payload, err := c.do(ctx, http.MethodPost, "/portal/verifications", draft, true)
	if err != nil {
		return types.Verification{}, err
	}

	var record types.Verification
	if err := json.Unmarshal(payload, &record); err != nil {
		return types.Verification{}, fmt.Errorf("invalid verification response: %w", err)
	}
	return record, nil
}

// DeleteVerification removes one record by id.
func (c *HTTPClient) DeleteVerification(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, http.MethodDelete, "/portal/verifications/"+id, nil, true)
	return err
}

// Export fetches the full snapshot document.
func (c *HTTPClient) Export(ctx context.Context) (types.ExportDocument, error) {
	_, payload, err := c.do(ctx, http.MethodPost, "/portal/export", nil, true)
	if err != nil {
		return types.ExportDocument{}, err
	}

	var doc types.ExportDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return types.ExportDocument{}, fmt.Errorf("invalid export response: %w", err)
	}
	return doc, nil
}

// SubscribeSessions returns a channel of session changes and an unsubscribe
// func.
func (c *HTTPClient) SubscribeSessions() (<-chan SessionEvent, func()) {
	return c.events.subscribe()
}

// Close drops subscribers. The cached session file is left for the next
// invocation.
func (c *HTTPClient) Close() error {
	c.events.close()
	return nil
}

// establish stores and announces a new session.
func (c *HTTPClient) establish(resp sessionResponse) *Session {
	session := &Session{
		Token:    resp.Token,
		UserID:   resp.User.ID,
		Email:    resp.User.Email,
		Recovery: resp.Recovery,
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.persistSession(session)
	c.events.publish(SessionEvent{Session: session})

	copied := *session
	return &copied
}

// drop discards the session and announces the loss.
func (c *HTTPClient) drop() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()

	if c.tokenFile != "" {
		_ = os.Remove(c.tokenFile)
	}
	if had {
		c.events.publish(SessionEvent{Session: nil})
	}
}

// do performs one request. It returns the status and raw body on 2xx, an
// *APIError carrying the backend message otherwise.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, authed bool) (int, []byte, error) {
	var token string
	if authed {
		c.mu.RLock()
		if c.session != nil {
			token = c.session.Token
		}
		c.mu.RUnlock()
		if token == "" {
			return 0, nil, ErrNoSession
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if authed && resp.StatusCode == http.StatusUnauthorized {
			c.drop()
		}
		return resp.StatusCode, nil, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(payload),
		}
	}
	return resp.StatusCode, payload, nil
}

// errorMessage extracts the backend's message from an error payload.
func errorMessage(payload []byte) string {
	var body struct {
		Error  string `json:"error"`
		Notice string `json:"notice"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Notice
}

// persistSession caches the session to the token file.
func (c *HTTPClient) persistSession(session *Session) {
	if c.tokenFile == "" {
		return
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.tokenFile, payload, 0o600)
}

// restoreSession loads a cached session, if any. Recovery sessions are not
// restored; their only use is the immediate password update.
func (c *HTTPClient) restoreSession() {
	if c.tokenFile == "" {
		return
	}
	payload, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil || session.Token == "" || session.Recovery {
		return
	}
	c.session = &session
}
