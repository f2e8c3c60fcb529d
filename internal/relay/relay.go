// Package relay drives one login round trip: it sends the browser to the
// provider on behalf of a tenant, and on the way back exchanges the code,
// fetches the user's profile and hands it to the tenant's destination.
package relay

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/BlackMission/authrelay/internal/domain"
)

// Authorizer builds the provider authorization URL for a state value.
type Authorizer interface {
	AuthURL(state string) string
}

// TokenExchanger trades an authorization code for an access token.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// ProfileFetcher retrieves the authenticated user's profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token *oauth2.Token) (domain.UserProfile, error)
}

// Forwarder delivers a profile to a tenant and returns the URL the browser
// should land on.
type Forwarder interface {
	Forward(ctx context.Context, tenantID string, profile domain.UserProfile) (string, error)
}

// Stage is a state of the relay state machine.
type Stage int

const (
	StageStart Stage = iota
	StageAuthorizationRequested
	StageCodeReceived
	StageTokenObtained
	StageProfileObtained
	StageForwarded
	StageComplete
	StageErrored
)

var stageNames = [...]string{
	StageStart:                  "start",
	StageAuthorizationRequested: "authorization_requested",
	StageCodeReceived:           "code_received",
	StageTokenObtained:          "token_obtained",
	StageProfileObtained:        "profile_obtained",
	StageForwarded:              "forwarded",
	StageComplete:               "complete",
	StageErrored:                "errored",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError reports a failed transition. Stage is the state the relay was
// in when the transition began; the relay itself moves to StageErrored.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}
