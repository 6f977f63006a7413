package cnst

// Error codes surfaced to the UI layer in error events and REST responses.
const (
	ErrCodeParse                    = "PARSE_ERROR"
	ErrCodeAuthenticationFailed     = "AUTHENTICATION_FAILED"
	ErrCodeConnection               = "CONNECTION_ERROR"
	ErrCodeDocumentMissing          = "DOCUMENT_MISSING"
	ErrCodeDocumentTooLarge         = "DOCUMENT_TOO_LARGE"
	ErrCodeInvalidDocumentFormat    = "INVALID_DOCUMENT_FORMAT"
	ErrCodeSignatureRequest         = "SIGNATURE_REQUEST_ERROR"
	ErrCodeDocumentSignatureRequest = "DOCUMENT_SIGNATURE_REQUEST_ERROR"
	ErrCodeMissingRequiredField     = "MISSING_REQUIRED_FIELD"
	ErrCodeSubmission               = "SUBMISSION_ERROR"
	ErrCodeTimeout                  = "TIMEOUT"
	ErrCodeNetwork                  = "NETWORK_ERROR"
)
