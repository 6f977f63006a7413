package cnst

import "time"

// Connection defaults. All of them are overridable through the connection
// section of the YAML configuration.
const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatInterval    = 30 * time.Second
	MaxReconnectDelay           = 30 * time.Second
	ManualReconnectDelay        = time.Second

	// A connection is considered stale when no heartbeat acknowledgment has
	// been observed for this many heartbeat intervals.
	HeartbeatStaleFactor = 3
)

// Close reasons sent with the WebSocket close frame.
const (
	CloseReasonClientDisconnect = "Client disconnect"
	CloseReasonHeartbeatTimeout = "Heartbeat timeout"
)

// Signature session defaults and limits.
const (
	// DefaultSignatureTimeout bounds a plain signature session with no
	// server-provided expiry.
	DefaultSignatureTimeout = 5 * time.Minute

	// DefaultDocumentTimeoutMinutes is applied to document sessions whose
	// payload carries no timeout.
	DefaultDocumentTimeoutMinutes = 15

	// MaxDocumentSize is the ceiling for socket-embedded PDF payloads.
	MaxDocumentSize = 10 << 20 // 10 MiB

	// MaxSignatureSize bounds the captured signature image accepted for
	// REST submission.
	MaxSignatureSize = 5_000_000

	// PDFDataURIPrefix is the only accepted document encoding.
	PDFDataURIPrefix = "data:application/pdf;base64,"
)

// Company id fallbacks used when neither the payload nor the paired device
// identity carries one. The backend assigns distinct defaults per flow.
const (
	FallbackCompanyID      = 1
	FallbackPlainCompanyID = 2
)

// REST collaborator defaults.
const (
	DefaultAPITimeout           = 15 * time.Second
	DefaultAPIRetryAttempts     = 3
	DefaultAPIRetryDelay        = time.Second
	DefaultStatusUpdateInterval = time.Minute
)
