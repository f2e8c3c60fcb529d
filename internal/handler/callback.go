package handler

import (
	"net/http"

	"github.com/BlackMission/authrelay/internal/relay"
)

// Callback handles GET /callback?code=<code>&state=<tenant>.
// It completes the relay and redirects the browser to the tenant's login URL.
func Callback(svc Relay, errs Errors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := relay.CallbackParams{
			Code:             q.Get("code"),
			State:            q.Get("state"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		}

		loginURL, err := svc.Callback(r.Context(), params)
		if err != nil {
			errs.respond(w, r, params.State, err)
			return
		}

		http.Redirect(w, r, loginURL, http.StatusFound)
	}
}
