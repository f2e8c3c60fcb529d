package domain

import "encoding/json"

// TenantRecord is one registered tenant application.
// A record without a DestinationURL is treated as absent.
type TenantRecord struct {
	ID             string `json:"tenant_id" bson:"app_name"`
	DestinationURL string `json:"destination_url" bson:"user_data_post_url"`
}

// UserProfile is the provider's user document, relayed to tenants untouched.
type UserProfile = json.RawMessage

// RelayPayload is the body posted to a tenant destination.
type RelayPayload struct {
	App  string      `json:"app"`
	User UserProfile `json:"user"`
}

// RelayResponse is what a tenant destination answers with.
type RelayResponse struct {
	LoginURL string `json:"login_url"`
}
