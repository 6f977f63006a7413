package cnst

// Wire message types exchanged with the CRM backend. Every frame is a JSON
// envelope {type, payload}; the type selects handling on both ends.
const (
	// Bidirectional
	MsgTypeAuthentication = "authentication"
	MsgTypeHeartbeat      = "heartbeat"
	MsgTypeConnection     = "connection"
	MsgTypeError          = "error"

	// Inbound (server -> tablet)
	MsgTypeSignatureRequest         = "signature_request"
	MsgTypeSimpleSignatureRequest   = "simple_signature_request"
	MsgTypeDocumentSignatureRequest = "document_signature_request"
	MsgTypeSessionCancelled         = "session_cancelled"
	MsgTypeSimpleSessionCancelled   = "simple_session_cancelled"
	MsgTypeDocumentSessionCancelled = "document_session_cancelled"
	MsgTypeAdminMessage             = "admin_message"

	// Outbound (tablet -> server)
	MsgTypePong                       = "pong"
	MsgTypeTabletStatus               = "tablet_status"
	MsgTypeSignatureCompleted         = "signature_completed"
	MsgTypeDocumentSignatureCompleted = "document_signature_completed"
	MsgTypeDocumentViewingStatus      = "document_viewing_status"
	MsgTypeSignatureSubmission        = "signature_submission"
	MsgTypeSignaturePlacement         = "signature_placement"
)

// Admin message sub-types carried in admin_message payloads.
const (
	AdminMsgPing          = "ping"
	AdminMsgStatusRequest = "status_request"
)

// Authentication payload status values returned by the server.
const (
	AuthStatusAuthenticated = "authenticated"
	AuthStatusFailed        = "failed"
)
