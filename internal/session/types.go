package session

import "encoding/json"

// State is a session's position in the lifecycle state machine of §4.6:
//
//	New -> Initializing -> Ready -> Closing -> Closed
//
// Transitions are monotonic except that any state may be forced to Closed
// (transport failure, explicit shutdown).
type State int

const (
	StateNew State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerInfo identifies one side of the session (clientInfo or serverInfo).
type PeerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is a sparse object keyed by feature name ("tools", "prompts",
// "resources", "completions", "logging", "experimental", ...). A feature's
// presence as a key — regardless of its value's contents — is what §4.6 calls
// "negotiated on"; its absence makes the feature negotiated-off.
type Capabilities map[string]json.RawMessage

// Clone returns a defensive shallow copy safe to hand to callers.
func (c Capabilities) Clone() Capabilities {
	if c == nil {
		return nil
	}
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Has reports whether the named feature is present in this capability set.
func (c Capabilities) Has(feature string) bool {
	_, ok := c[feature]
	return ok
}

// Set marks a feature present with the given (possibly empty) detail object.
func (c Capabilities) Set(feature string, detail interface{}) {
	if detail == nil {
		c[feature] = json.RawMessage("{}")
		return
	}
	b, err := json.Marshal(detail)
	if err != nil {
		c[feature] = json.RawMessage("{}")
		return
	}
	c[feature] = b
}

// InitializeParams is the parsed body of an inbound "initialize" request.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ClientInfo      PeerInfo        `json:"clientInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

// InitializeResult is the body returned from a successful "initialize" call.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      PeerInfo     `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
	Instructions    string       `json:"instructions,omitempty"`
}
