// Package authgate implements the HTTP-transport-only authentication gate
// of §4.10: OAuth 2.0 resource-server bearer-token validation in front of
// the sse transport, protected-resource metadata discovery per RFC 9728,
// and the RFC 6750 WWW-Authenticate challenge on failure.
package authgate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpcore/mcpcore/internal/ctxkey"
)

// Claims is the subset of a verified bearer token's claims the rest of the
// server cares about.
type Claims struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// Config configures a Gate.
type Config struct {
	// Issuer is the expected "iss" claim. Checked only when non-empty.
	Issuer string
	// Audience is this resource's canonical identifier (e.g.
	// "https://example.com/mcp"), checked against the token's "aud" claim
	// and echoed in the WWW-Authenticate resource parameter.
	Audience string
	// JWKSURL is where signing keys are fetched from.
	JWKSURL string
	// JWKSCacheTTL bounds how long fetched keys are cached.
	JWKSCacheTTL time.Duration
	// ClockSkew is the tolerance applied to exp/nbf/iat checks.
	ClockSkew time.Duration
	// AuthorizationServers lists the issuer URLs advertised by the
	// protected-resource metadata document.
	AuthorizationServers []string
	// AllowQueryToken permits `?access_token=` as a fallback extraction
	// site, disabled by default because query strings leak into access
	// logs and Referer headers.
	AllowQueryToken bool

	Logger *slog.Logger

	// OnFailure, if set, is called once per rejected request, after the
	// failure is logged and before the challenge is written. Wired to
	// internal/metrics' auth-failure counter; nil is fine for callers that
	// don't track it.
	OnFailure func()

	// AllowPaths lists additional request paths that bypass the gate
	// unauthenticated, beyond the built-in OAuth metadata paths. Typically
	// the process's health-check endpoint.
	AllowPaths []string
}

// defaultAllowedPaths bypass the gate unconditionally: the OAuth metadata
// documents a 401'd client is directed to fetch (via the WWW-Authenticate
// challenge's resource_metadata parameter, and the authorization-server
// metadata it in turn points to) can never themselves require the very
// token the client doesn't have yet. Per §4.10's allow-list.
var defaultAllowedPaths = []string{
	"/.well-known/oauth-protected-resource",
	"/.well-known/oauth-authorization-server",
	"/health",
	"/healthz",
}

// Gate validates bearer tokens on inbound HTTP requests.
type Gate struct {
	issuer               string
	audience             string
	clockSkew            time.Duration
	authorizationServers []string
	allowQueryToken      bool
	logger               *slog.Logger
	keys                 *keySet
	onFailure            func()
	allowedPaths         map[string]struct{}
}

// New builds a Gate from cfg.
func New(cfg Config) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.JWKSCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	allowed := make(map[string]struct{}, len(defaultAllowedPaths)+len(cfg.AllowPaths))
	for _, p := range defaultAllowedPaths {
		allowed[p] = struct{}{}
	}
	for _, p := range cfg.AllowPaths {
		allowed[p] = struct{}{}
	}
	return &Gate{
		issuer:               cfg.Issuer,
		audience:             cfg.Audience,
		clockSkew:            cfg.ClockSkew,
		authorizationServers: cfg.AuthorizationServers,
		allowQueryToken:      cfg.AllowQueryToken,
		logger:               logger,
		keys:                 newKeySet(cfg.JWKSURL, ttl),
		onFailure:            cfg.OnFailure,
		allowedPaths:         allowed,
	}
}

// allowsPath reports whether path bypasses authentication entirely.
func (g *Gate) allowsPath(path string) bool {
	_, ok := g.allowedPaths[path]
	return ok
}

// Middleware wraps next, rejecting any request without a valid bearer token
// scoped to this resource. Requests to an allow-listed path (OAuth metadata,
// health checks) pass through unauthenticated. On success, the verified
// Claims are attached to the request context under ctxkey.ClaimsKey.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.allowsPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		claims, ce := g.authenticate(r)
		if ce != nil {
			g.logger.Debug("authgate: rejecting request", "remote_addr", r.RemoteAddr, "error", ce.code)
			if g.onFailure != nil {
				g.onFailure()
			}
			g.writeChallenge(w, ce)
			return
		}
		ctx := context.WithValue(r.Context(), ctxkey.ClaimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) authenticate(r *http.Request) (*Claims, *challengeError) {
	raw := extractBearerToken(r, g.allowQueryToken)
	if raw == "" {
		return nil, missingToken()
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(g.clockSkew),
		jwt.WithAudience(g.audience),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}

	parsed, err := jwt.Parse(raw, g.keys.Keyfunc, opts...)
	if err != nil {
		return nil, invalidToken(describeJWTError(err))
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, invalidToken("unparsable claims")
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if scope, ok := mapClaims["scope"].(string); ok {
		claims.Scopes = strings.Fields(scope)
	}

	return claims, nil
}

func describeJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token is not valid yet"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "token audience does not match this resource"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer is not trusted"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	default:
		return "token could not be verified"
	}
}

// extractBearerToken reads the Authorization header (the only mechanism
// enabled by default), falling back to a query parameter only when the
// caller has explicitly opted in.
func extractBearerToken(r *http.Request, allowQuery bool) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok && rest != "" {
			return rest
		}
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func (g *Gate) resourceMetadataURL() string {
	u, err := url.Parse(g.audience)
	if err != nil {
		return "/.well-known/oauth-protected-resource"
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/.well-known/oauth-protected-resource"}).String()
}
