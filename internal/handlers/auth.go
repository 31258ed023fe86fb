package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussieverify/aussieverify/internal/services"
	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/aussieverify/aussieverify/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeFull marks a normal authenticated session.
	ScopeFull = "full"

	// ScopeRecovery marks the short-lived session exchanged from an
	// emailed recovery token. It may only update the password.
	ScopeRecovery = "recovery"
)

// sessionClaims extends the registered claims with the session scope.
type sessionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// AuthHandler provides the identity endpoints.
type AuthHandler struct {
	identity    *services.IdentityService
	secret      []byte
	tokenTTL    time.Duration
	recoveryTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService, jwtSecret string, tokenTTL, recoveryTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		identity:    identity,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		recoveryTTL: recoveryTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, identity *services.IdentityService, jwtSecret string, tokenTTL, recoveryTTL time.Duration) {
	handler := NewAuthHandler(identity, jwtSecret, tokenTTL, recoveryTTL)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/forgot", handler.Forgot)
	r.Post("/recovery", handler.Recovery)
	r.With(handler.requireAnySession).Post("/logout", handler.Logout)
	r.With(handler.requireAnySession).Get("/session", handler.Session)
	r.With(handler.requireAnySession).Post("/password", handler.UpdatePassword)
}

// RequireAuth constructs middleware for portal routes: a full session is
// required, recovery-scoped tokens are rejected.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret), false)
}

// requireAnySession admits both full and recovery sessions.
func (h *AuthHandler) requireAnySession(next http.Handler) http.Handler {
	return requireAuth(h.secret, true)(next)
}

func requireAuth(secret []byte, allowRecovery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, scope, err := parseToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if scope == ScopeRecovery && !allowRecovery {
				writeError(w, http.StatusForbidden, "recovery session can only update the password")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			ctx = context.WithValue(ctx, contextScopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new account. When email confirmation is required no
// session is returned and the client drops back to login with a notice.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	if h.identity.RequiresEmailConfirmation() {
		writeNotice(w, http.StatusAccepted, "Confirm your email to finish signup, then login.")
		return
	}

	token, err := h.issueToken(user.ID, ScopeFull, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Token: token, User: user})
}

// Login verifies credentials and returns a full session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.issueToken(user.ID, ScopeFull, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Token: token, User: user})
}

// Logout ends the session. Tokens are stateless, so this is an
// acknowledgement; the client discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the current authenticated user, for session hydration.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		User:     user,
		Recovery: scopeFromContext(r.Context()) == ScopeRecovery,
	})
}

// Forgot requests a password reset mail. The response is identical whether
// or not the address has an account.
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.identity.StartRecovery(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send reset link")
		return
	}
	writeNotice(w, http.StatusAccepted, "Check your email for a reset link.")
}

// Recovery exchanges an emailed recovery token for a recovery-scoped
// session. The token is consumed on use.
func (h *AuthHandler) Recovery(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.identity.ConsumeRecovery(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRecoveryToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open recovery session")
		return
	}

	token, err := h.issueToken(user.ID, ScopeRecovery, h.recoveryTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Token: token, User: user, Recovery: true})
}

// UpdatePassword replaces the caller's credential and returns a fresh full
// session. Valid for both full and recovery-scoped sessions.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}

	if err := h.identity.SetPassword(r.Context(), userID, req.NewPassword); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	token, err := h.issueToken(user.ID, ScopeFull, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Token: token, User: user})
}

// CredentialsRequest carries an email/password pair.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotRequest struct {
	Email string `json:"email"`
}

type RecoveryRequest struct {
	Token string `json:"token"`
}

type PasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// SessionResponse is the authentication payload: a bearer token (empty for
// hydration responses), the user, and whether the session is
// recovery-scoped.
type SessionResponse struct {
	Token    string     `json:"token,omitempty"`
	User     types.User `json:"user"`
	Recovery bool       `json:"recovery,omitempty"`
}

func (h *AuthHandler) issueToken(userID, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

func parseToken(tokenString string, secret []byte) (subject, scope string, err error) {
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", "", errors.New("missing subject")
	}
	scope = claims.Scope
	if scope == "" {
		scope = ScopeFull
	}
	return claims.Subject, scope, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
