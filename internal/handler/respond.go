package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BlackMission/authrelay/internal/domain"
	"github.com/BlackMission/authrelay/internal/relay"
	"github.com/BlackMission/authrelay/pkg/requestcontext"
)

const genericMessage = "An error occurred. Please try again later."

// Relay is the part of the orchestrator the HTTP layer drives.
type Relay interface {
	Login(ctx context.Context, tenantID string) (string, error)
	Callback(ctx context.Context, params relay.CallbackParams) (string, error)
}

// Errors turns relay failures into plain-text responses and logs them.
type Errors struct {
	Logger *slog.Logger
	// ExposeDetails appends the underlying error to the response body.
	ExposeDetails bool
}

// classify maps an error to its status code and client-facing message.
// Caller and tenant-data problems are 400; everything else is 500.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingParameter):
		return http.StatusBadRequest, "Missing required parameter"
	case errors.Is(err, domain.ErrUnknownTenant):
		return http.StatusBadRequest, "Unknown app"
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return http.StatusBadRequest, "Authorization was denied"
	case errors.Is(err, domain.ErrTokenEndpoint), errors.Is(err, domain.ErrMissingToken):
		return http.StatusBadRequest, "Failed to obtain access token"
	case errors.Is(err, domain.ErrProfileEndpoint):
		return http.StatusBadRequest, "Failed to fetch user profile"
	case errors.Is(err, domain.ErrTenantRejected):
		return http.StatusBadRequest, "App rejected the login"
	case errors.Is(err, domain.ErrMissingRedirect):
		return http.StatusBadRequest, "No login URL received from app"
	default:
		// ErrRegistryUnavailable, ErrTransport and anything unclassified.
		return http.StatusInternalServerError, genericMessage
	}
}

func (e Errors) respond(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	status, message := classify(err)

	stage := relay.StageErrored.String()
	var se *relay.StageError
	if errors.As(err, &se) {
		stage = se.Stage.String()
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	e.logger().Log(r.Context(), level, "relay request failed",
		"path", r.URL.Path,
		"tenant_id", tenantID,
		"stage", stage,
		"status", status,
		"error", err,
		"request_id", requestcontext.RequestID(r.Context()),
	)

	if e.ExposeDetails {
		message += ": " + err.Error()
	}
	writeError(w, status, message)
}

func (e Errors) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
