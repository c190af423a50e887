package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the facade
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Flow metrics
	AuthorizationRelayed metric.Int64Counter
	CallbackStitched     metric.Int64Counter
	TokenMinted          metric.Int64Counter
	FlowRejected         metric.Int64Counter
	ClientRegistered     metric.Int64Counter

	// Upstream metrics
	CodeRedemptions metric.Int64Counter
	JWKSRefreshes   metric.Int64Counter

	// Security metrics
	RateLimitExceeded metric.Int64Counter

	// Storage gauges
	StoragePendingCount metric.Int64ObservableGauge
	StorageCodesCount   metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	httpMeter := inst.Meter("http")
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"facade.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, fmt.Errorf("failed to create http counter: %w", err)
	}
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"facade.http.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create http histogram: %w", err)
	}

	flowMeter := inst.Meter("flows")
	m.AuthorizationRelayed, err = flowMeter.Int64Counter(
		"facade.flow.authorizations.relayed",
		metric.WithDescription("Authorization requests relayed upstream"))
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization counter: %w", err)
	}
	m.CallbackStitched, err = flowMeter.Int64Counter(
		"facade.flow.callbacks.stitched",
		metric.WithDescription("Upstream callbacks relayed back to downstream clients"))
	if err != nil {
		return nil, fmt.Errorf("failed to create callback counter: %w", err)
	}
	m.TokenMinted, err = flowMeter.Int64Counter(
		"facade.flow.tokens.minted",
		metric.WithDescription("Tokens minted, by grant type"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}
	m.FlowRejected, err = flowMeter.Int64Counter(
		"facade.flow.rejections",
		metric.WithDescription("Rejected callbacks and redemptions, by stage"))
	if err != nil {
		return nil, fmt.Errorf("failed to create rejection counter: %w", err)
	}
	m.ClientRegistered, err = flowMeter.Int64Counter(
		"facade.flow.clients.registered",
		metric.WithDescription("Dynamic client registrations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration counter: %w", err)
	}

	upstreamMeter := inst.Meter("upstream")
	m.CodeRedemptions, err = upstreamMeter.Int64Counter(
		"facade.upstream.code.redemptions",
		metric.WithDescription("Authorization code redemptions against the IdP, by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create redemption counter: %w", err)
	}
	m.JWKSRefreshes, err = upstreamMeter.Int64Counter(
		"facade.upstream.jwks.refreshes",
		metric.WithDescription("Upstream JWKS refresh attempts, by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create jwks counter: %w", err)
	}

	securityMeter := inst.Meter("security")
	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"facade.security.ratelimit.exceeded",
		metric.WithDescription("Requests rejected by rate limiting"))
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit counter: %w", err)
	}

	storageMeter := inst.Meter("storage")
	m.StoragePendingCount, err = storageMeter.Int64ObservableGauge(
		"facade.storage.pending.count",
		metric.WithDescription("Pending authorizations currently stored"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pending gauge: %w", err)
	}
	m.StorageCodesCount, err = storageMeter.Int64ObservableGauge(
		"facade.storage.codes.count",
		metric.WithDescription("Issued codes currently stored"))
	if err != nil {
		return nil, fmt.Errorf("failed to create codes gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.endpoint", endpoint),
		attribute.Int("http.status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

// RecordAuthorizationRelayed records a relayed authorization request
func (m *Metrics) RecordAuthorizationRelayed(ctx context.Context) {
	m.AuthorizationRelayed.Add(ctx, 1)
}

// RecordCallbackStitched records a callback relayed downstream
func (m *Metrics) RecordCallbackStitched(ctx context.Context, success bool) {
	m.CallbackStitched.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordTokenMinted records a minted token by grant type
func (m *Metrics) RecordTokenMinted(ctx context.Context, grantType string) {
	m.TokenMinted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
	))
}

// RecordFlowRejected records a rejected callback or redemption
func (m *Metrics) RecordFlowRejected(ctx context.Context, stage string) {
	m.FlowRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordClientRegistered records a dynamic client registration
func (m *Metrics) RecordClientRegistered(ctx context.Context) {
	m.ClientRegistered.Add(ctx, 1)
}

// RecordCodeRedemption records an upstream code redemption attempt
func (m *Metrics) RecordCodeRedemption(ctx context.Context, result string) {
	m.CodeRedemptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordJWKSRefresh records a JWKS refresh attempt
func (m *Metrics) RecordJWKSRefresh(ctx context.Context, result string) {
	m.JWKSRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordRateLimitExceeded records a rate limit rejection by endpoint
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
