package types

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Display   string `json:"display"`
	State     string `json:"state"`
}

type KeysRequest struct {
	Keys []string `json:"keys"`
}

type KeysResponse struct {
	SessionID string   `json:"session_id"`
	Display   string   `json:"display"`
	Pending   string   `json:"pending,omitempty"`
	State     string   `json:"state"`
	Committed []string `json:"committed,omitempty"` // expressions logged by this request
	Ignored   []string `json:"ignored,omitempty"`   // tokens that are not keys
	Notices   []Notice `json:"notices,omitempty"`
}

// Notice reports a persistence failure that happened after the request that
// caused it had already returned.
type Notice struct {
	Kind       string `json:"kind"`
	Expression string `json:"expression,omitempty"`
	Message    string `json:"message"`
}
