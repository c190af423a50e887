package facade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/mcp-oauth-facade/instrumentation"
	"github.com/giantswarm/mcp-oauth-facade/security"
	"github.com/giantswarm/mcp-oauth-facade/upstream"
)

// maxRegistrationBodySize caps client registration request bodies (64 KB)
const maxRegistrationBodySize = 64 * 1024

// HandlerConfig holds HTTP adapter configuration
type HandlerConfig struct {
	// RateLimitPerSecond is the per-IP request rate allowed on the
	// authorization, token, and registration endpoints. Zero disables limiting.
	RateLimitPerSecond int

	// RateLimitBurst is the per-IP burst allowance
	RateLimitBurst int

	// Instrumentation provides metrics and tracing (optional)
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// Handler adapts the facade server to net/http.
type Handler struct {
	server  *Server
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instrumentation.Metrics
	limiter *security.RateLimiter
}

// NewHandler creates an HTTP adapter for server
func NewHandler(server *Server, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var tracer trace.Tracer = tracenoop.NewTracerProvider().Tracer("")
	var metrics *instrumentation.Metrics
	if cfg.Instrumentation != nil {
		tracer = cfg.Instrumentation.Tracer("http")
		metrics = cfg.Instrumentation.Metrics()
	}

	var limiter *security.RateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = security.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)
	}

	return &Handler{
		server:  server,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
		limiter: limiter,
	}
}

// RegisterEndpoints registers all facade endpoints on mux
func (h *Handler) RegisterEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("GET /authorize", h.ServeAuthorization)
	mux.HandleFunc("GET /callback", h.ServeCallback)
	mux.HandleFunc("POST /token", h.ServeToken)
	mux.HandleFunc("POST /register", h.ServeClientRegistration)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", h.ServeProtectedResourceMetadata)
	mux.HandleFunc("GET /.well-known/jwks.json", h.ServeJWKS)
	mux.HandleFunc("GET /healthz", h.ServeHealth)
}

// Close releases handler resources
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Close()
	}
}

// ServeAuthorization handles GET /authorize
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "facade.authorize")
	defer span.End()
	start := time.Now()

	setSecurityHeaders(w)
	clientIP := clientIP(r)

	if !h.allow(w, r, clientIP, "/authorize") {
		return
	}

	query := r.URL.Query()
	req := &AuthorizationRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		Resource:            query.Get("resource"),
		ClientIP:            clientIP,
	}

	redirectURL, err := h.server.StartAuthorization(ctx, req)
	if err != nil {
		h.writeError(w, err)
		h.recordRequest(r, "/authorize", errorStatus(err), start, span)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAuthorizationRelayed(ctx)
	}
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))
	http.Redirect(w, r, redirectURL, http.StatusFound)
	h.recordRequest(r, "/authorize", http.StatusFound, start, span)
}

// ServeCallback handles GET /callback from the upstream IdP
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "facade.callback")
	defer span.End()
	start := time.Now()

	setSecurityHeaders(w)

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		// Upstream denied the authorization; relay its error code
		desc := query.Get("error_description")
		h.writeError(w, NewOAuthError(errCode, desc, http.StatusBadRequest))
		h.recordRequest(r, "/callback", http.StatusBadRequest, start, span)
		return
	}

	redirectURL, err := h.server.HandleCallback(ctx, query.Get("code"), query.Get("state"), clientIP(r))
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordCallbackStitched(ctx, false)
		}
		h.writeError(w, err)
		h.recordRequest(r, "/callback", errorStatus(err), start, span)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCallbackStitched(ctx, true)
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
	h.recordRequest(r, "/callback", http.StatusFound, start, span)
}

// ServeToken handles POST /token, dispatching on grant_type
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "facade.token")
	defer span.End()
	start := time.Now()

	setSecurityHeaders(w)
	ip := clientIP(r)

	if !h.allow(w, r, ip, "/token") {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("failed to parse form body"))
		h.recordRequest(r, "/token", http.StatusBadRequest, start, span)
		return
	}

	grantType := r.PostFormValue("grant_type")
	span.SetAttributes(attribute.String("oauth.grant_type", grantType))

	var (
		resp *TokenResponse
		err  error
	)
	switch grantType {
	case GrantTypeAuthorizationCode:
		resp, err = h.server.RedeemCode(ctx,
			r.PostFormValue("code"),
			r.PostFormValue("code_verifier"),
			ip)
	case GrantTypeClientCredentials:
		resp, err = h.server.ClientCredentials(ctx,
			r.PostFormValue("client_id"),
			r.PostFormValue("client_secret"),
			r.PostFormValue("resource"),
			ip)
	case GrantTypeTokenExchange:
		resp, err = h.server.ExchangeToken(ctx, &TokenExchangeRequest{
			SubjectToken:     r.PostFormValue("subject_token"),
			SubjectTokenType: r.PostFormValue("subject_token_type"),
			ActorToken:       r.PostFormValue("act_token"),
			Scope:            r.PostFormValue("scope"),
			Resource:         r.PostFormValue("resource"),
			ClientIP:         ip,
		})
	case "":
		err = ErrInvalidRequest("grant_type is required")
	default:
		err = ErrUnsupportedGrantType("unsupported grant_type: " + grantType)
	}

	if err != nil {
		h.writeError(w, err)
		h.recordRequest(r, "/token", errorStatus(err), start, span)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTokenMinted(ctx, grantType)
	}
	h.writeJSON(w, http.StatusOK, resp)
	h.recordRequest(r, "/token", http.StatusOK, start, span)
}

// ServeClientRegistration handles POST /register
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "facade.register")
	defer span.End()
	start := time.Now()

	setSecurityHeaders(w)
	ip := clientIP(r)

	if !h.allow(w, r, ip, "/register") {
		return
	}

	var req ClientRegistrationRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBodySize))
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, ErrInvalidRequest("invalid JSON body"))
		h.recordRequest(r, "/register", http.StatusBadRequest, start, span)
		return
	}

	resp, err := h.server.RegisterClient(&req, ip)
	if err != nil {
		h.writeError(w, err)
		h.recordRequest(r, "/register", errorStatus(err), start, span)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordClientRegistered(ctx)
	}
	h.writeJSON(w, http.StatusCreated, resp)
	h.recordRequest(r, "/register", http.StatusCreated, start, span)
}

// ServeAuthorizationServerMetadata handles GET /.well-known/oauth-authorization-server
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, h.server.Metadata())
}

// ServeProtectedResourceMetadata handles GET /.well-known/oauth-protected-resource
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	metadata := h.server.ResourceMetadata()
	if metadata == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, metadata)
}

// ServeJWKS handles GET /.well-known/jwks.json
func (h *Handler) ServeJWKS(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, h.server.JWKS())
}

// ServeHealth handles GET /healthz
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allow applies per-IP rate limiting, writing a 429 when the limit is hit
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, ip, endpoint string) bool {
	if h.limiter == nil || h.limiter.Allow(ip) {
		return true
	}

	h.server.Auditor().LogRateLimitExceeded(ip, endpoint)
	if h.metrics != nil {
		h.metrics.RecordRateLimitExceeded(r.Context(), endpoint)
	}

	w.Header().Set("Retry-After", "1")
	h.writeJSON(w, http.StatusTooManyRequests, &ErrorResponse{
		Error:            ErrorCodeRateLimitExceeded,
		ErrorDescription: "too many requests",
	})
	return false
}

// writeError writes an error response. OAuth errors get the standard JSON
// shape; upstream token endpoint failures are relayed with the IdP's status
// and body untouched.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var endpointErr *upstream.TokenEndpointError
	if errors.As(err, &endpointErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(endpointErr.Status)
		_, _ = w.Write(endpointErr.Body)
		return
	}

	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		h.logger.Error("unexpected error type in handler", "error", err)
		oauthErr = ErrServerError("internal server error")
	}

	h.writeJSON(w, oauthErr.Status, &ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) recordRequest(r *http.Request, endpoint string, status int, start time.Time, span trace.Span) {
	span.SetAttributes(
		attribute.String("http.endpoint", endpoint),
		attribute.Int("http.status_code", status),
	)
	if status >= 400 {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if h.metrics != nil {
		h.metrics.RecordHTTPRequest(r.Context(), r.Method, endpoint, status, float64(time.Since(start).Milliseconds()))
	}
}

// errorStatus extracts the HTTP status an error will be written with
func errorStatus(err error) int {
	var endpointErr *upstream.TokenEndpointError
	if errors.As(err, &endpointErr) {
		return endpointErr.Status
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr.Status
	}
	return http.StatusInternalServerError
}

// setSecurityHeaders applies the standard response headers for OAuth endpoints
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// clientIP extracts the direct connection IP from the request
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
