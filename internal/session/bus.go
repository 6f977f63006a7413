package session

import (
	"encoding/json"
	"sync"

	"github.com/autoserwis/signpad/internal/request"
	"go.uber.org/zap"
)

// Topic names an event published by the session. Known inbound message
// types map onto fixed topics; unrecognized wire types are re-published
// verbatim under their own name for forward compatibility.
type Topic string

const (
	TopicConnection           Topic = "connection"
	TopicStatusChanged        Topic = "connection_status_changed"
	TopicAuthenticated        Topic = "authenticated"
	TopicAuthenticationFailed Topic = "authentication_failed"
	TopicError                Topic = "error"

	TopicSignatureRequest         Topic = "signature_request"
	TopicSimpleSignatureRequest   Topic = "simple_signature_request"
	TopicDocumentSignatureRequest Topic = "document_signature_request"

	TopicSessionCancelled         Topic = "session_cancelled"
	TopicSimpleSessionCancelled   Topic = "simple_session_cancelled"
	TopicDocumentSessionCancelled Topic = "document_session_cancelled"

	TopicAdminMessage Topic = "admin_message"
)

// ConnectionEvent reports a connection status transition or a connection
// message relayed from the server.
type ConnectionEvent struct {
	Status string `json:"status"`
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// StatusChange reports an internal status transition.
type StatusChange struct {
	Status   Status `json:"status"`
	Previous Status `json:"previousStatus"`
}

// ErrorEvent carries a taxonomy error code and a human-readable message.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CancellationEvent reports a server-side session cancellation.
type CancellationEvent struct {
	SessionID string          `json:"sessionId"`
	Variant   request.Variant `json:"variant"`
}

// Event is the tagged payload delivered to subscribers. Exactly the field
// matching the topic is populated; Raw holds server payloads that the
// session relays without normalizing.
type Event struct {
	Topic Topic

	Connection *ConnectionEvent
	Change     *StatusChange
	Error      *ErrorEvent
	Cancelled  *CancellationEvent

	Plain    *request.PlainSignatureRequest
	Simple   *request.SimpleSignatureRequest
	Document *request.DocumentSignatureRequest

	Raw json.RawMessage
}

// Handler consumes events for one topic.
type Handler func(Event)

// Bus is the session's publish/subscribe fan-out. Multiple subscribers per
// topic are supported; each subscription is removable through the handle
// returned by Subscribe, and a panicking handler never prevents the
// remaining handlers from running.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]Handler
}

// NewBus creates an empty event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("bus"),
		subs:   make(map[Topic]map[uint64]Handler),
	}
}

// Subscribe registers a handler for the topic and returns its unsubscribe
// function.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.nextID++
	id := b.nextID
	b.subs[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers the event to every handler subscribed to its topic.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Topic]))
	for _, h := range b.subs[event.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(event, h)
	}
}

// deliver isolates handler panics so one subscriber cannot break another.
func (b *Bus) deliver(event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", string(event.Topic)),
				zap.Any("panic", r))
		}
	}()
	h(event)
}
