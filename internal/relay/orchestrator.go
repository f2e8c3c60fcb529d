package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/BlackMission/authrelay/internal/audit"
	"github.com/BlackMission/authrelay/internal/domain"
	"github.com/BlackMission/authrelay/internal/tenant"
	"github.com/BlackMission/authrelay/pkg/requestcontext"
)

const tracerName = "authrelay/relay"

// Deps are the capabilities the orchestrator drives.
type Deps struct {
	Registry   tenant.Registry
	Authorizer Authorizer
	Exchanger  TokenExchanger
	Profiles   ProfileFetcher
	Forwarder  Forwarder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records outcomes and step durations.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithAuditPublisher sends an audit event for every login and callback.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(o *Orchestrator) { o.audit = p }
}

// WithClock overrides time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs the relay state machine. It holds no per-request state
// and is safe for concurrent use.
type Orchestrator struct {
	deps    Deps
	metrics *Metrics
	tracer  trace.Tracer
	audit   audit.Publisher
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator over deps.
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:  deps,
		audit: audit.NopPublisher{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Login resolves the tenant and returns the provider authorization URL with
// the tenant ID as state.
func (o *Orchestrator) Login(ctx context.Context, tenantID string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "relay.Login", trace.WithAttributes(attribute.String("tenant.id", tenantID)))

	authURL, err := o.login(ctx, tenantID)

	endSpan(span, err)
	o.metrics.observeLogin(err)
	o.publish(ctx, "login", tenantID, StageAuthorizationRequested, err)
	return authURL, err
}

func (o *Orchestrator) login(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		return "", &StageError{Stage: StageStart, Err: fmt.Errorf("%w: app", domain.ErrMissingParameter)}
	}
	if _, err := o.deps.Registry.Resolve(ctx, tenantID); err != nil {
		return "", &StageError{Stage: StageStart, Err: err}
	}
	return o.deps.Authorizer.AuthURL(tenantID), nil
}

// Callback completes the round trip for the provider's redirect and returns
// the tenant's login URL. Each step runs once; nothing is retried.
func (o *Orchestrator) Callback(ctx context.Context, params CallbackParams) (string, error) {
	ctx, span := o.tracer.Start(ctx, "relay.Callback", trace.WithAttributes(attribute.String("tenant.id", params.State)))

	loginURL, stage, err := o.callback(ctx, params)

	endSpan(span, err)
	o.metrics.observeCallback(stage, err)
	o.publish(ctx, "callback", params.State, stage, err)
	return loginURL, err
}

// callback returns the stage the machine ended in: StageComplete on success,
// otherwise the stage whose outgoing transition failed.
func (o *Orchestrator) callback(ctx context.Context, params CallbackParams) (string, Stage, error) {
	stage := StageAuthorizationRequested
	fail := func(err error) (string, Stage, error) {
		return "", stage, &StageError{Stage: stage, Err: err}
	}

	if params.Error != "" {
		detail := params.ErrorDescription
		if detail == "" {
			detail = params.Error
		}
		return fail(&domain.UpstreamError{Kind: domain.ErrAuthorizationDenied, Detail: detail})
	}
	switch {
	case params.Code == "":
		return fail(fmt.Errorf("%w: code", domain.ErrMissingParameter))
	case params.State == "":
		return fail(fmt.Errorf("%w: state", domain.ErrMissingParameter))
	}
	stage = StageCodeReceived

	var token *oauth2.Token
	err := o.step(ctx, "exchange_code", func(ctx context.Context) error {
		var err error
		token, err = o.deps.Exchanger.ExchangeCode(ctx, params.Code)
		return err
	})
	if err != nil {
		return fail(err)
	}
	stage = StageTokenObtained

	var profile domain.UserProfile
	err = o.step(ctx, "fetch_profile", func(ctx context.Context) error {
		var err error
		profile, err = o.deps.Profiles.FetchProfile(ctx, token)
		return err
	})
	if err != nil {
		return fail(err)
	}
	stage = StageProfileObtained

	var loginURL string
	err = o.step(ctx, "forward", func(ctx context.Context) error {
		var err error
		loginURL, err = o.deps.Forwarder.Forward(ctx, params.State, profile)
		return err
	})
	if err != nil {
		return fail(err)
	}

	// Forwarded -> Complete is the redirect itself and cannot fail.
	return loginURL, StageComplete, nil
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "relay."+name)
	start := time.Now()

	err := fn(ctx)

	o.metrics.observeStep(name, time.Since(start).Seconds(), err)
	endSpan(span, err)
	return err
}

func (o *Orchestrator) publish(ctx context.Context, action, tenantID string, stage Stage, err error) {
	event := audit.Event{
		Time:      o.now().UTC(),
		Action:    action,
		TenantID:  tenantID,
		Outcome:   audit.OutcomeSuccess,
		Stage:     stage.String(),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.Reason = Reason(err).Error()
		var se *StageError
		if errors.As(err, &se) {
			event.Stage = se.Stage.String()
		}
	}
	o.audit.Publish(ctx, event)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err).Error())
	}
	span.End()
}

var reasons = []error{
	domain.ErrMissingParameter,
	domain.ErrAuthorizationDenied,
	domain.ErrUnknownTenant,
	domain.ErrRegistryUnavailable,
	domain.ErrTokenEndpoint,
	domain.ErrMissingToken,
	domain.ErrProfileEndpoint,
	domain.ErrTenantRejected,
	domain.ErrMissingRedirect,
	domain.ErrTransport,
	context.Canceled,
	context.DeadlineExceeded,
}

// Reason reduces err to the sentinel that classifies it, dropping remote
// diagnostics. Unclassified errors come back unchanged.
func Reason(err error) error {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r
		}
	}
	return err
}
