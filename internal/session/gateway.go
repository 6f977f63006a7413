package session

import (
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
)

// Outbound acknowledgments and signing progress reports. These are thin
// payload builders over Send; delivery guarantees come from the arbiter,
// which calls each acknowledgment at most once per session.

type completionPayload struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
	CompanyID int64  `json:"companyId"`
}

// AcknowledgeSignatureCompletion reports the outcome of a plain or simple
// signature session.
func (s *Session) AcknowledgeSignatureCompletion(sessionID string, success bool) {
	s.Send(cnst.MsgTypeSignatureCompleted, s.completion(sessionID, success))
}

// AcknowledgeDocumentSignatureCompletion reports the outcome of a document
// signature session.
func (s *Session) AcknowledgeDocumentSignatureCompletion(sessionID string, success bool) {
	s.Send(cnst.MsgTypeDocumentSignatureCompleted, s.completion(sessionID, success))
}

func (s *Session) completion(sessionID string, success bool) completionPayload {
	p := completionPayload{
		SessionID: sessionID,
		Success:   success,
		Timestamp: time.Now().UTC().Format(isoMillis),
	}
	if identity := s.identitySnapshot(); identity != nil {
		p.DeviceID = identity.DeviceID
		p.CompanyID = identity.CompanyID
	}
	return p
}

type viewingStatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Page      int    `json:"page,omitempty"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
}

// SendDocumentViewingStatus reports the reader's progress through a
// document, e.g. "opened", "scrolled_to_end".
func (s *Session) SendDocumentViewingStatus(sessionID, status string, page int) {
	p := viewingStatusPayload{
		SessionID: sessionID,
		Status:    status,
		Page:      page,
		Timestamp: time.Now().UTC().Format(isoMillis),
	}
	if identity := s.identitySnapshot(); identity != nil {
		p.DeviceID = identity.DeviceID
	}
	s.Send(cnst.MsgTypeDocumentViewingStatus, p)
}

type placementPayload struct {
	SessionID string  `json:"sessionId"`
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp string  `json:"timestamp"`
}

// SendSignaturePlacement reports where on the document the signature was
// placed.
func (s *Session) SendSignaturePlacement(sessionID string, page int, x, y float64) {
	s.Send(cnst.MsgTypeSignaturePlacement, placementPayload{
		SessionID: sessionID,
		Page:      page,
		X:         x,
		Y:         y,
		Timestamp: time.Now().UTC().Format(isoMillis),
	})
}

type submissionPayload struct {
	SessionID string `json:"sessionId"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
	CompanyID int64  `json:"companyId"`
}

// SendSignatureSubmission pushes captured signature image data over the
// socket, used when the REST submission path is unavailable.
func (s *Session) SendSignatureSubmission(sessionID, signatureData string) {
	p := submissionPayload{
		SessionID: sessionID,
		Signature: signatureData,
		Timestamp: time.Now().UTC().Format(isoMillis),
	}
	if identity := s.identitySnapshot(); identity != nil {
		p.DeviceID = identity.DeviceID
		p.CompanyID = identity.CompanyID
	}
	s.Send(cnst.MsgTypeSignatureSubmission, p)
}
