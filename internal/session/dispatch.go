package session

import (
	"encoding/json"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/request"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// dispatch routes one inbound frame by its envelope type.
func (s *Session) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		s.logger.Error("failed to parse websocket message", zap.Error(err))
		s.publish(Event{
			Topic: TopicError,
			Error: &ErrorEvent{Code: cnst.ErrCodeParse, Message: "Failed to parse server message"},
		})
		return
	}

	if s.metrics != nil {
		s.metrics.MessageReceived(env.Type)
	}
	s.logger.Debug("websocket message received", zap.String("type", env.Type))

	switch env.Type {
	case cnst.MsgTypeAuthentication:
		s.handleAuthentication(env.Payload)
	case cnst.MsgTypeHeartbeat:
		s.handleHeartbeat()
	case cnst.MsgTypeConnection:
		s.handleConnectionMessage(env.Payload)
	case cnst.MsgTypeError:
		s.handleErrorMessage(env.Payload)
	case cnst.MsgTypeSignatureRequest:
		s.handleSignatureRequest(env.Payload)
	case cnst.MsgTypeSimpleSignatureRequest:
		s.handleSimpleSignatureRequest(env.Payload)
	case cnst.MsgTypeDocumentSignatureRequest:
		s.handleDocumentSignatureRequest(env.Payload)
	case cnst.MsgTypeSessionCancelled:
		s.handleCancellation(env.Payload, request.VariantPlain, TopicSessionCancelled)
	case cnst.MsgTypeSimpleSessionCancelled:
		s.handleCancellation(env.Payload, request.VariantSimple, TopicSimpleSessionCancelled)
	case cnst.MsgTypeDocumentSessionCancelled:
		s.handleCancellation(env.Payload, request.VariantDocument, TopicDocumentSessionCancelled)
	case cnst.MsgTypeAdminMessage:
		s.handleAdminMessage(env.Payload)
	default:
		// Unknown types pass through under their own name so new server
		// messages reach subscribers without a client update.
		s.logger.Debug("unhandled websocket message type", zap.String("type", env.Type))
		s.publish(Event{Topic: Topic(env.Type), Raw: env.Payload})
	}
}

func (s *Session) handleAuthentication(payload json.RawMessage) {
	status := gjson.GetBytes(payload, "status").String()
	if status == cnst.AuthStatusAuthenticated {
		s.mu.Lock()
		ev, changed := s.setStatusLocked(StatusAuthenticated)
		s.reconnectAttempts = 0
		s.lastHeartbeat = time.Now()
		s.startHeartbeatLocked()
		s.mu.Unlock()

		s.logger.Info("websocket authenticated")
		var events []Event
		if changed {
			events = append(events, ev)
		}
		events = append(events, Event{Topic: TopicAuthenticated, Raw: payload})
		s.publishAll(events)
		return
	}

	reason := gjson.GetBytes(payload, "error").String()
	if reason == "" {
		reason = "Authentication failed"
	}

	s.mu.Lock()
	ev, changed := s.setStatusLocked(StatusError)
	s.mu.Unlock()

	s.logger.Error("websocket authentication failed", zap.String("reason", reason))
	var events []Event
	if changed {
		events = append(events, ev)
	}
	events = append(events,
		Event{Topic: TopicAuthenticationFailed, Raw: payload},
		Event{
			Topic: TopicError,
			Error: &ErrorEvent{Code: cnst.ErrCodeAuthenticationFailed, Message: reason},
		})
	s.publishAll(events)
}

func (s *Session) handleHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *Session) handleConnectionMessage(payload json.RawMessage) {
	s.publish(Event{
		Topic: TopicConnection,
		Connection: &ConnectionEvent{
			Status: gjson.GetBytes(payload, "status").String(),
			Reason: gjson.GetBytes(payload, "message").String(),
		},
	})
}

func (s *Session) handleErrorMessage(payload json.RawMessage) {
	code := gjson.GetBytes(payload, "code").String()
	if code == "" {
		code = cnst.ErrCodeConnection
	}
	message := gjson.GetBytes(payload, "message").String()
	s.logger.Error("server reported error",
		zap.String("code", code),
		zap.String("message", message))
	s.publish(Event{Topic: TopicError, Error: &ErrorEvent{Code: code, Message: message}})
}

func (s *Session) handleSignatureRequest(payload json.RawMessage) {
	req, verr := s.normalizer.Plain(payload, s.identityCompanyID())
	if verr != nil {
		s.rejectRequest(cnst.MsgTypeSignatureRequest, verr)
		return
	}
	s.logger.Info("signature request received",
		zap.String("sessionId", req.SessionID),
		zap.String("customer", req.CustomerName))
	if s.metrics != nil {
		s.metrics.RequestReceived(string(request.VariantPlain))
	}
	s.notifier.RequestReceived()
	s.publish(Event{Topic: TopicSignatureRequest, Plain: req})
}

func (s *Session) handleSimpleSignatureRequest(payload json.RawMessage) {
	req, verr := s.normalizer.Simple(payload, s.identityCompanyID())
	if verr != nil {
		s.rejectRequest(cnst.MsgTypeSimpleSignatureRequest, verr)
		return
	}
	s.logger.Info("simple signature request received",
		zap.String("sessionId", req.SessionID),
		zap.String("signatureType", string(req.SignatureType)))
	if s.metrics != nil {
		s.metrics.RequestReceived(string(request.VariantSimple))
	}
	s.notifier.RequestReceived()
	s.publish(Event{Topic: TopicSimpleSignatureRequest, Simple: req})
}

func (s *Session) handleDocumentSignatureRequest(payload json.RawMessage) {
	req, verr := s.normalizer.Document(payload, s.identityCompanyID())
	if verr != nil {
		s.rejectRequest(cnst.MsgTypeDocumentSignatureRequest, verr)
		return
	}
	s.logger.Info("document signature request received",
		zap.String("sessionId", req.SessionID),
		zap.Int64("documentSize", req.Document.Size))
	if s.metrics != nil {
		s.metrics.RequestReceived(string(request.VariantDocument))
	}
	s.notifier.RequestReceived()
	s.publish(Event{Topic: TopicDocumentSignatureRequest, Document: req})
}

// rejectRequest handles a request that failed normalization. Requests
// missing required fields are dropped with a log entry only; document
// payload problems are surfaced as error events so the backend operator
// sees them.
func (s *Session) rejectRequest(msgType string, verr *request.ValidationError) {
	if verr.Code == cnst.ErrCodeMissingRequiredField {
		s.logger.Warn("dropping malformed request",
			zap.String("type", msgType),
			zap.String("reason", verr.Message))
		return
	}
	s.logger.Error("rejecting request",
		zap.String("type", msgType),
		zap.String("code", verr.Code),
		zap.String("reason", verr.Message))
	s.publish(Event{Topic: TopicError, Error: &ErrorEvent{Code: verr.Code, Message: verr.Message}})
}

func (s *Session) handleCancellation(payload json.RawMessage, variant request.Variant, topic Topic) {
	sessionID := gjson.GetBytes(payload, "sessionId").String()
	s.logger.Info("session cancelled by server",
		zap.String("sessionId", sessionID),
		zap.String("variant", string(variant)))
	s.publish(Event{
		Topic:     topic,
		Cancelled: &CancellationEvent{SessionID: sessionID, Variant: variant},
	})
}

// handleAdminMessage answers operational probes from the backend: ping is
// echoed as pong with the correlating request id, status_request triggers
// an immediate tablet_status report. Other admin messages are relayed to
// subscribers.
func (s *Session) handleAdminMessage(payload json.RawMessage) {
	msg := gjson.GetBytes(payload, "message").String()
	switch msg {
	case cnst.AdminMsgPing:
		s.Send(cnst.MsgTypePong, pongPayload{
			RequestID: gjson.GetBytes(payload, "requestId").String(),
			Timestamp: time.Now().UTC().Format(isoMillis),
		})
	case cnst.AdminMsgStatusRequest:
		s.SendStatusUpdate()
	default:
		s.logger.Info("admin message received", zap.String("message", msg))
		s.publish(Event{Topic: TopicAdminMessage, Raw: payload})
	}
}

// SendStatusUpdate reports current tablet telemetry to the backend. Sends
// are dropped while disconnected like any other message.
func (s *Session) SendStatusUpdate() {
	identity := s.identitySnapshot()
	if identity == nil {
		return
	}
	status := statusPayload{
		DeviceID:    identity.DeviceID,
		Orientation: s.statusProvider.Orientation(),
		IsActive:    s.statusProvider.Active(),
		Timestamp:   time.Now().UTC().Format(isoMillis),
	}
	if level, ok := s.statusProvider.BatteryLevel(); ok {
		status.BatteryLevel = &level
	}
	s.Send(cnst.MsgTypeTabletStatus, status)
}

type pongPayload struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

type statusPayload struct {
	DeviceID     string `json:"deviceId"`
	BatteryLevel *int   `json:"batteryLevel,omitempty"`
	Orientation  string `json:"orientation"`
	IsActive     bool   `json:"isActive"`
	Timestamp    string `json:"timestamp"`
}
