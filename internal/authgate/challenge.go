package authgate

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// challengeError is a failed-authentication outcome: the WWW-Authenticate
// challenge and JSON error body §4.10 requires on a 401/403 response.
type challengeError struct {
	status      int
	code        string // e.g. "invalid_token", "insufficient_scope"
	description string
}

func (e *challengeError) Error() string { return e.code + ": " + e.description }

func missingToken() *challengeError {
	return &challengeError{status: http.StatusUnauthorized, code: "invalid_token", description: "Request did not include bearer token"}
}

func invalidToken(reason string) *challengeError {
	return &challengeError{status: http.StatusUnauthorized, code: "invalid_token", description: reason}
}

// writeChallenge emits the WWW-Authenticate header and JSON error body for
// a failed authentication, per RFC 6750 / RFC 9728 and §8 scenario 6's
// literal header shape.
func (g *Gate) writeChallenge(w http.ResponseWriter, ce *challengeError) {
	resourceMetadataURL := g.resourceMetadataURL()
	header := fmt.Sprintf(`Bearer resource=%q, resource_metadata=%q, error=%q, error_description=%q`,
		g.audience, resourceMetadataURL, ce.code, ce.description)
	w.Header().Set("WWW-Authenticate", header)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":             ce.code,
		"error_description": ce.description,
		"status":            ce.status,
	})
}
