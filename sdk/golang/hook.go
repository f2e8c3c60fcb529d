package authrelay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxPayloadBytes = 1 << 20

// Payload is what the relay posts to a tenant destination.
type Payload struct {
	App  string          `json:"app"`
	User json.RawMessage `json:"user"`
}

// Profile holds the commonly used fields of a Discord user document.
type Profile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Email      string `json:"email"`
	Verified   bool   `json:"verified"`
}

// Profile decodes the user document.
func (p *Payload) Profile() (*Profile, error) {
	var profile Profile
	if err := json.Unmarshal(p.User, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

type hookResponse struct {
	LoginURL string `json:"login_url"`
}

type errorResponse struct {
	ErrorMsg string `json:"error"`
}

// HookHandler returns the http.HandlerFunc to serve at the tenant's
// destination URL. onUser receives each relayed user and returns the URL the
// browser should land on, typically one carrying a one-time session token.
// Payloads for an app other than app are refused.
func HookHandler(app string, onUser func(ctx context.Context, payload *Payload) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var payload Payload
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if payload.App != app {
			writeError(w, http.StatusForbidden, "payload for another app")
			return
		}
		if len(payload.User) == 0 || string(payload.User) == "null" {
			writeError(w, http.StatusBadRequest, "missing user")
			return
		}

		loginURL, err := onUser(r.Context(), &payload)
		if err != nil {
			var e *Error
			if errors.As(err, &e) && e.StatusCode != 0 {
				writeError(w, e.StatusCode, e.Message)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if loginURL == "" {
			writeError(w, http.StatusInternalServerError, "no login URL")
			return
		}

		writeJSON(w, http.StatusOK, hookResponse{LoginURL: loginURL})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{ErrorMsg: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
