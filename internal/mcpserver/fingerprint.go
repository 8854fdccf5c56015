package mcpserver

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// fingerprintJSON hashes v's canonical JSON encoding. Registries call this
// before and after a mutation to decide whether the registered set actually
// changed, so a Register(overwrite=true) call that replaces a descriptor
// with an identical one doesn't trigger a spurious */list_changed
// notification to every connected peer.
//
// Grounded on the teacher's computeCacheKey (internal/service/policy_service.go),
// which hashes a request's identifying fields with xxhash to key a decision
// cache; reused here as a content fingerprint rather than a cache key.
func fingerprintJSON(v interface{}) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}
