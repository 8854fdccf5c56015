package authgate

import (
	"encoding/json"
	"net/http"
)

// protectedResourceMetadata is the RFC 9728 document served at
// /.well-known/oauth-protected-resource.
type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// ProtectedResourceHandler serves the protected-resource metadata document
// clients discover via the WWW-Authenticate challenge's resource_metadata
// parameter.
func (g *Gate) ProtectedResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protectedResourceMetadata{
			Resource:             g.audience,
			AuthorizationServers: g.authorizationServers,
		})
	}
}
