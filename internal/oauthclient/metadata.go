// Package oauthclient implements the client-side half of §4.10's OAuth
// challenge flow: on receiving a 401 Bearer challenge, a TokenManager
// discovers the authorization server's metadata and dispatches to one of
// three provider strategies to obtain (and later refresh) an access token,
// caching it per resource.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AuthServerMetadata is the RFC 8414 / RFC 9728-discovered document at
// /.well-known/oauth-authorization-server.
type AuthServerMetadata struct {
	Issuer                      string `json:"issuer"`
	AuthorizationEndpoint       string `json:"authorization_endpoint"`
	TokenEndpoint               string `json:"token_endpoint"`
	JWKSURI                     string `json:"jwks_uri"`
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint,omitempty"`
	RegistrationEndpoint        string `json:"registration_endpoint,omitempty"`
}

// DiscoverAuthServerMetadata fetches issuer's well-known metadata document.
// The demo authorization server itself (what answers this request) is an
// external collaborator, not something this module implements.
func DiscoverAuthServerMetadata(ctx context.Context, httpClient *http.Client, issuer string) (*AuthServerMetadata, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	u := strings.TrimRight(issuer, "/") + "/.well-known/oauth-authorization-server"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: fetching authorization server metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauthclient: authorization server metadata returned %d", resp.StatusCode)
	}

	var meta AuthServerMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("oauthclient: decoding authorization server metadata: %w", err)
	}
	return &meta, nil
}

// DiscoverProtectedResourceMetadata fetches the resource's
// /.well-known/oauth-protected-resource document, the starting point named
// by a WWW-Authenticate challenge's resource_metadata parameter.
func DiscoverProtectedResourceMetadata(ctx context.Context, httpClient *http.Client, resourceMetadataURL string) ([]string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceMetadataURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: fetching protected resource metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauthclient: protected resource metadata returned %d", resp.StatusCode)
	}

	var doc struct {
		AuthorizationServers []string `json:"authorization_servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("oauthclient: decoding protected resource metadata: %w", err)
	}
	return doc.AuthorizationServers, nil
}
