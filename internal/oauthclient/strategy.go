package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenResponse is the normalized outcome of any provider strategy's
// exchange, per §4.10.
type TokenResponse struct {
	AccessToken  string
	ExpiresAt    *time.Time
	RefreshToken string
}

func fromOAuth2Token(tok *oauth2.Token) TokenResponse {
	out := TokenResponse{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		out.ExpiresAt = &expiry
	}
	return out
}

// Strategy obtains an access token for resource given the authorization
// server's discovered metadata.
type Strategy interface {
	Exchange(ctx context.Context, meta *AuthServerMetadata) (TokenResponse, error)
}

// ClientCredentialsStrategy implements the machine-to-machine OAuth 2.0
// client-credentials grant.
type ClientCredentialsStrategy struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
}

func (s ClientCredentialsStrategy) Exchange(ctx context.Context, meta *AuthServerMetadata) (TokenResponse, error) {
	cfg := clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     meta.TokenEndpoint,
		Scopes:       s.Scopes,
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("oauthclient: client-credentials exchange: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

// DeviceCodePrompt is called once a device code has been obtained, so the
// caller can show the user the verification URL and code to enter.
type DeviceCodePrompt func(userCode, verificationURI, verificationURIComplete string)

// DeviceCodeStrategy implements RFC 8628 device authorization, for clients
// without a way to receive a browser redirect (CLIs, TVs).
type DeviceCodeStrategy struct {
	ClientID   string
	Scopes     []string
	Prompt     DeviceCodePrompt
	HTTPClient *http.Client
}

func (s DeviceCodeStrategy) Exchange(ctx context.Context, meta *AuthServerMetadata) (TokenResponse, error) {
	if meta.DeviceAuthorizationEndpoint == "" {
		return TokenResponse{}, fmt.Errorf("oauthclient: authorization server does not advertise a device_authorization_endpoint")
	}
	cfg := &oauth2.Config{
		ClientID: s.ClientID,
		Scopes:   s.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       meta.AuthorizationEndpoint,
			TokenURL:      meta.TokenEndpoint,
			DeviceAuthURL: meta.DeviceAuthorizationEndpoint,
		},
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}

	deviceAuth, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("oauthclient: device authorization request: %w", err)
	}
	if s.Prompt != nil {
		s.Prompt(deviceAuth.UserCode, deviceAuth.VerificationURI, deviceAuth.VerificationURIComplete)
	}

	tok, err := cfg.DeviceAccessToken(ctx, deviceAuth)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("oauthclient: device access token poll: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

// AuthCodeURLBuilder is called with the PKCE-protected authorization URL
// the user should be sent to; the caller is responsible for opening it and
// capturing the resulting redirect.
type AuthCodeURLBuilder func(authCodeURL string)

// AuthCodeReceiver returns the "code" query parameter captured from the
// authorization server's redirect back to the client's redirect_uri.
type AuthCodeReceiver func(ctx context.Context) (code string, err error)

// AuthCodePKCEStrategy implements the authorization-code grant with PKCE
// (RFC 7636), for clients that can receive a redirect (desktop apps with a
// loopback listener, or a browser-embedded client).
type AuthCodePKCEStrategy struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
	ShowURL     AuthCodeURLBuilder
	ReceiveCode AuthCodeReceiver
	HTTPClient  *http.Client
}

func (s AuthCodePKCEStrategy) Exchange(ctx context.Context, meta *AuthServerMetadata) (TokenResponse, error) {
	cfg := &oauth2.Config{
		ClientID:    s.ClientID,
		RedirectURL: s.RedirectURL,
		Scopes:      s.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  meta.AuthorizationEndpoint,
			TokenURL: meta.TokenEndpoint,
		},
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	if s.ShowURL != nil {
		s.ShowURL(authURL)
	}

	code, err := s.ReceiveCode(ctx)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("oauthclient: receiving authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("oauthclient: authorization code exchange: %w", err)
	}
	return fromOAuth2Token(tok), nil
}
