package session

import "encoding/json"

// isoMillis is the timestamp layout the backend speaks, millisecond
// precision with a zone designator.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the wire frame exchanged with the backend. The payload stays
// raw at this boundary; the normalizer is the only component that gives it
// structure.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outEnvelope is the outbound counterpart with an arbitrary payload.
type outEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
