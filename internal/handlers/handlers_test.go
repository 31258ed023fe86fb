package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussieverify/aussieverify/internal/mailer"
	"github.com/aussieverify/aussieverify/internal/services"
	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/aussieverify/aussieverify/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// memStore is an in-memory stand-in for the Postgres repositories.
type memStore struct {
	mu            sync.Mutex
	users         map[string]types.User
	profiles      map[string]types.Profile
	verifications map[string]types.Verification
	resetTokens   map[string]types.ResetToken
	mailJobs      []mailer.Job
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]types.User),
		profiles:      make(map[string]types.Profile),
		verifications: make(map[string]types.Verification),
		resetTokens:   make(map[string]types.ResetToken),
	}
}

func (m *memStore) GetByID(ctx context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memStore) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return nil
}

func (m *memStore) CreateToken(ctx context.Context, token types.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[token.TokenHash] = token
	return nil
}

func (m *memStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.resetTokens[tokenHash]
	if !ok || time.Now().After(token.ExpiresAt) {
		return "", store.ErrNotFound
	}
	delete(m.resetTokens, tokenHash)
	return token.UserID, nil
}

func (m *memStore) Get(ctx context.Context, userID string) (types.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (m *memStore) Upsert(ctx context.Context, profile types.Profile) (types.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile.UpdatedAt = time.Now()
	m.profiles[profile.UserID] = profile
	return profile, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string) ([]types.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []types.Verification
	for _, record := range m.verifications {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (m *memStore) Insert(ctx context.Context, record types.Verification) (types.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.CreatedAt = time.Now()
	m.verifications[record.ID] = record
	return record, nil
}

func (m *memStore) Delete(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.verifications[id]
	if !ok || record.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.verifications, id)
	return nil
}

func (m *memStore) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	job, err := mailer.DecodeJob(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mailJobs = append(m.mailJobs, job)
	return "msg-1", nil
}

// tokenRepo adapts memStore to the reset-token interface, whose Create
// collides with the user repository's.
type tokenRepo struct{ *memStore }

func (r tokenRepo) Create(ctx context.Context, token types.ResetToken) error {
	return r.memStore.CreateToken(ctx, token)
}

func newTestServer(t *testing.T, requireConfirmation bool) (*httptest.Server, *memStore) {
	t.Helper()

	mem := newMemStore()
	identity := services.NewIdentityService(mem, tokenRepo{mem}, mem, "http://portal.local", 30*time.Minute, requireConfirmation)
	portal := services.NewPortalService(mem, mem, nil)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, identity, testSecret, time.Hour, 30*time.Minute)
	})
	router.Route("/portal", func(r chi.Router) {
		r.Use(RequireAuth(testSecret))
		PortalRouter(r, portal, identity)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func registerAndLogin(t *testing.T, baseURL, email string) (string, types.User) {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, baseURL+"/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var session SessionResponse
	require.NoError(t, json.Unmarshal(body, &session))
	require.NotEmpty(t, session.Token)
	return session.Token, session.User
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t, false)

	token, user := registerAndLogin(t, srv.URL, "owner@example.com")
	assert.NotEmpty(t, token)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
		"email":    "owner@example.com",
		"password": "other",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "already exists")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "hunter2!",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadCredentialsWithOneMessage(t *testing.T) {
	srv, _ := newTestServer(t, false)
	registerAndLogin(t, srv.URL, "owner@example.com")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "invalid email or password")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "invalid email or password")
}

func TestRegisterWithConfirmationReturnsNoticeNoSession(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
		"email":    "owner@example.com",
		"password": "hunter2!",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "Confirm your email")
	assert.NotContains(t, string(body), "token")
}

func TestForgotAlwaysAccepted(t *testing.T) {
	srv, mem := newTestServer(t, false)
	registerAndLogin(t, srv.URL, "owner@example.com")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/auth/forgot", "", map[string]string{
		"email": "owner@example.com",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/forgot", "", map[string]string{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	mem.mu.Lock()
	defer mem.mu.Unlock()
	require.Len(t, mem.mailJobs, 1)
	assert.Equal(t, "owner@example.com", mem.mailJobs[0].To)
}

func TestRecoveryFlow(t *testing.T) {
	srv, mem := newTestServer(t, false)
	registerAndLogin(t, srv.URL, "owner@example.com")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/auth/forgot", "", map[string]string{
		"email": "owner@example.com",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	mem.mu.Lock()
	require.Len(t, mem.mailJobs, 1)
	link := mem.mailJobs[0].Link
	mem.mu.Unlock()

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "recovery", parsed.Query().Get("type"))
	rawToken := parsed.Query().Get("token")
	require.NotEmpty(t, rawToken)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/recovery", "", map[string]string{
		"token": rawToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var recovery SessionResponse
	require.NoError(t, json.Unmarshal(body, &recovery))
	assert.True(t, recovery.Recovery)
	require.NotEmpty(t, recovery.Token)

	// Single use: the same token cannot be exchanged again.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/auth/recovery", "", map[string]string{
		"token": rawToken,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid or has expired")

	// The recovery session may not touch portal data.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/portal/profile", recovery.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// It may update the password, which yields a full session.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/auth/password", recovery.Token, map[string]string{
		"new_password": "better-secret!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var fresh SessionResponse
	require.NoError(t, json.Unmarshal(body, &fresh))
	assert.False(t, fresh.Recovery)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/portal/profile", fresh.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "better-secret!",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProfileDefaultsToNSW(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, user := registerAndLogin(t, srv.URL, "owner@example.com")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/portal/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile types.Profile
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, user.ID, profile.UserID)
	assert.Equal(t, "NSW", profile.Region)
	assert.Empty(t, profile.OrgName)
}

func TestSaveProfileValidatesRegion(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, _ := registerAndLogin(t, srv.URL, "owner@example.com")

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/portal/profile", token, map[string]string{
		"org_name": "Acme Builds",
		"region":   "QLD",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var saved types.Profile
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, "QLD", saved.Region)
	assert.False(t, saved.UpdatedAt.IsZero())

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/portal/profile", token, map[string]string{
		"region": "XYZ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerificationsInsertThenListNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, user := registerAndLogin(t, srv.URL, "owner@example.com")

	for _, name := range []string{"First Co", "Second Co", "Third Co"} {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/portal/verifications", token, map[string]string{
			"contractor_name": name,
			"outcome":         "verified",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		var record types.Verification
		require.NoError(t, json.Unmarshal(body, &record))
		assert.Equal(t, user.ID, record.UserID)
		assert.NotEmpty(t, record.ID)
		assert.False(t, record.CreatedAt.IsZero())
		time.Sleep(2 * time.Millisecond)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/portal/verifications", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []types.Verification
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "Third Co", records[0].ContractorName)
	assert.Equal(t, "Second Co", records[1].ContractorName)
	assert.Equal(t, "First Co", records[2].ContractorName)
}

func TestAddVerificationRejectsBlankNameAndBadOutcome(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, _ := registerAndLogin(t, srv.URL, "owner@example.com")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/portal/verifications", token, map[string]string{
		"contractor_name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "name is required")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/portal/verifications", token, map[string]string{
		"contractor_name": "Acme",
		"outcome":         "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteIsScopedToOwner(t *testing.T) {
	srv, _ := newTestServer(t, false)
	ownerToken, _ := registerAndLogin(t, srv.URL, "owner@example.com")
	otherToken, _ := registerAndLogin(t, srv.URL, "other@example.com")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/portal/verifications", ownerToken, map[string]string{
		"contractor_name": "Acme",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record types.Verification
	require.NoError(t, json.Unmarshal(body, &record))

	// Another user deleting by the same id gets not-found and changes nothing.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/portal/verifications/"+record.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/portal/verifications", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []types.Verification
	require.NoError(t, json.Unmarshal(body, &records))
	assert.Len(t, records, 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/portal/verifications/"+record.ID, ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestExportCarriesIdentityProfileAndRecords(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, user := registerAndLogin(t, srv.URL, "owner@example.com")

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/portal/profile", token, map[string]string{
		"org_name": "Acme Builds",
		"region":   "VIC",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/portal/verifications", token, map[string]string{
		"contractor_name": "Brisk Plumbing Co",
		"outcome":         "review",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/portal/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc types.ExportDocument
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, user.ID, doc.UserID)
	assert.Equal(t, "owner@example.com", doc.Email)
	assert.Equal(t, "Acme Builds", doc.Profile.OrgName)
	require.Len(t, doc.Verifications, 1)
	assert.Equal(t, types.OutcomeReview, doc.Verifications[0].Outcome)
}

func TestPortalRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/portal/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/portal/profile", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordUpdateNeverEchoesHash(t *testing.T) {
	srv, _ := newTestServer(t, false)
	token, _ := registerAndLogin(t, srv.URL, "owner@example.com")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/password", token, map[string]string{
		"new_password": "better-secret!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, strings.Contains(string(body), "password_hash"))
}
