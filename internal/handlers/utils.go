package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const (
	contextSubjectKey contextKey = "sub"
	contextScopeKey   contextKey = "scope"
)

func userIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return "", errors.New("missing subject")
	}
	return subject, nil
}

func scopeFromContext(ctx context.Context) string {
	scope, _ := ctx.Value(contextScopeKey).(string)
	return scope
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeNotice(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, NoticeResponse{Notice: message})
}

// ErrorResponse is the error payload. The message is what the portal shows
// the user verbatim.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NoticeResponse carries an informational, non-error message.
type NoticeResponse struct {
	Notice string `json:"notice"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
