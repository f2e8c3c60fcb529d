package handler

import (
	"net/http"
)

// Login handles GET /login?app=<tenant>.
// It resolves the tenant and redirects the browser to the provider.
func Login(svc Relay, errs Errors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("app")

		authURL, err := svc.Login(r.Context(), tenantID)
		if err != nil {
			errs.respond(w, r, tenantID, err)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}
