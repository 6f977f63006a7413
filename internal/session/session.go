package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/device"
	"github.com/autoserwis/signpad/internal/notify"
	"github.com/autoserwis/signpad/internal/request"
	"github.com/autoserwis/signpad/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config tunes the session state machine.
type Config struct {
	// WSBaseURL is the backend base, e.g. wss://crm.example.com. The
	// session connects to {WSBaseURL}/ws/tablet/{deviceId}.
	WSBaseURL string

	// ReconnectInterval is the base of the exponential backoff.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts caps automatic reconnection. Exhausting the cap
	// moves the session to the error status until Connect or Reconnect is
	// called again.
	MaxReconnectAttempts int

	// HeartbeatInterval is the period of the liveness probe while
	// authenticated.
	HeartbeatInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = cnst.DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = cnst.DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = cnst.DefaultHeartbeatInterval
	}
}

// Options carries the session collaborators. Zero values select working
// defaults, so tests can inject only what they observe.
type Options struct {
	Dialer   Dialer                // default: gorilla WSDialer
	Notifier notify.Notifier       // default: no-op
	Status   notify.StatusProvider // default: static landscape/active
	Metrics  *metrics.Metrics      // optional
}

// Session owns the connection to the backend: the socket lifecycle,
// the authentication handshake, heartbeat liveness, reconnection with
// exponential backoff, and the typed event bus the UI subscribes to.
//
// All public methods are safe for concurrent use. The session is built once
// by the composition root and handed to consumers by reference.
type Session struct {
	logger         *zap.Logger
	cfg            Config
	dialer         Dialer
	bus            *Bus
	normalizer     *request.Normalizer
	notifier       notify.Notifier
	statusProvider notify.StatusProvider
	metrics        *metrics.Metrics

	mu                 sync.Mutex
	status             Status
	identity           *device.Identity
	transport          Transport
	gen                uint64
	reconnectAttempts  int
	reconnectTimer     *time.Timer
	heartbeatStop      chan struct{}
	lastHeartbeat      time.Time
	authenticationSent bool
	intentional        bool
}

// New creates a disconnected session.
func New(cfg Config, logger *zap.Logger, opts Options) *Session {
	cfg.setDefaults()

	if opts.Dialer == nil {
		opts.Dialer = &WSDialer{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Status == nil {
		opts.Status = notify.StaticStatus{IsActive: true}
	}

	return &Session{
		logger:         logger.Named("session"),
		cfg:            cfg,
		dialer:         opts.Dialer,
		bus:            NewBus(logger),
		normalizer:     request.NewNormalizer(logger),
		notifier:       opts.Notifier,
		statusProvider: opts.Status,
		metrics:        opts.Metrics,
		status:         StatusDisconnected,
	}
}

// On registers a handler for the topic and returns its unsubscribe
// function.
func (s *Session) On(topic Topic, handler Handler) func() {
	return s.bus.Subscribe(topic, handler)
}

// Connect stores the device identity and opens the connection. It is a
// no-op while a connection attempt is in flight or established.
func (s *Session) Connect(identity *device.Identity) {
	if !identity.Valid() {
		s.logger.Error("no usable device identity for connection")
		return
	}

	s.mu.Lock()
	switch s.status {
	case StatusConnected, StatusConnecting, StatusAuthenticated:
		s.mu.Unlock()
		s.logger.Debug("already connected or connecting")
		return
	}
	s.identity = identity
	s.intentional = false
	s.authenticationSent = false
	s.reconnectAttempts = 0
	events, gen := s.establishLocked()
	s.mu.Unlock()

	s.publishAll(events)
	go s.dial(gen)
}

// Disconnect closes the connection and suppresses automatic reconnection.
// Idempotent: a second call observes the disconnected status and emits
// nothing.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.intentional = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.stopHeartbeatLocked()
	s.gen++ // invalidate the read loop's close handling
	t := s.transport
	s.transport = nil
	s.authenticationSent = false
	s.reconnectAttempts = 0

	var events []Event
	if ev, changed := s.setStatusLocked(StatusDisconnected); changed {
		events = append(events, ev, Event{
			Topic: TopicConnection,
			Connection: &ConnectionEvent{
				Status: string(StatusDisconnected),
				Code:   websocket.CloseNormalClosure,
				Reason: cnst.CloseReasonClientDisconnect,
			},
		})
	}
	s.mu.Unlock()

	if t != nil {
		s.logger.Info("closing websocket connection")
		_ = t.Close(websocket.CloseNormalClosure, cnst.CloseReasonClientDisconnect)
	}
	s.publishAll(events)
}

// Reconnect tears the connection down and redials after a short delay,
// used for manual recovery. No-op when no identity has been stored yet.
func (s *Session) Reconnect() {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	if identity == nil {
		s.logger.Warn("cannot reconnect, no device identity stored")
		return
	}

	s.logger.Info("forcing reconnection")
	s.Disconnect()
	time.AfterFunc(cnst.ManualReconnectDelay, func() {
		s.Connect(identity)
	})
}

// Send serializes and transmits one envelope. Sends are fire-and-forget:
// when the transport is down the message is dropped with a warning, never
// queued.
func (s *Session) Send(msgType string, payload any) {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil {
		s.logger.Warn("websocket not connected, dropping message", zap.String("type", msgType))
		return
	}

	data, err := json.Marshal(outEnvelope{Type: msgType, Payload: payload})
	if err != nil {
		s.logger.Error("failed to encode websocket message",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}
	if err := t.WriteMessage(data); err != nil {
		s.logger.Error("failed to send websocket message",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.MessageSent(msgType)
	}
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsConnected reports whether the socket is open, authenticated or not.
func (s *Session) IsConnected() bool {
	st := s.Status()
	return st == StatusConnected || st == StatusAuthenticated
}

// IsAuthenticated reports whether the handshake has completed.
func (s *Session) IsAuthenticated() bool {
	return s.Status() == StatusAuthenticated
}

// Stats is a point-in-time snapshot of the connection for the UI layer.
type Stats struct {
	Status            Status    `json:"status"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastHeartbeat     time.Time `json:"lastHeartbeat"`
	Authenticated     bool      `json:"authenticated"`
	DeviceID          string    `json:"deviceId"`
	CompanyID         int64     `json:"companyId"`
}

// Stats returns connection statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Status:            s.status,
		ReconnectAttempts: s.reconnectAttempts,
		LastHeartbeat:     s.lastHeartbeat,
		Authenticated:     s.status == StatusAuthenticated,
	}
	if s.identity != nil {
		stats.DeviceID = s.identity.DeviceID
		stats.CompanyID = s.identity.CompanyID
	}
	return stats
}

// establishLocked prepares a connection attempt and returns its
// generation. Caller holds s.mu, publishes the events after unlocking,
// then starts dial(gen).
func (s *Session) establishLocked() ([]Event, uint64) {
	var events []Event
	if ev, changed := s.setStatusLocked(StatusConnecting); changed {
		events = append(events, ev)
	}
	s.gen++
	return events, s.gen
}

// dial performs one connection attempt for the given generation.
func (s *Session) dial(gen uint64) {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	if identity == nil {
		return
	}

	url := s.endpoint(identity.DeviceID)
	s.logger.Info("websocket connection attempt", zap.String("url", url))

	t, err := s.dialer.Dial(context.Background(), url)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ConnectAttempt("error")
		}
		s.logger.Error("failed to establish websocket connection", zap.Error(err))

		s.mu.Lock()
		if gen != s.gen || s.intentional {
			s.mu.Unlock()
			return
		}
		ev, changed := s.setStatusLocked(StatusError)
		s.mu.Unlock()

		var events []Event
		if changed {
			events = append(events, ev)
		}
		events = append(events, Event{
			Topic: TopicError,
			Error: &ErrorEvent{Code: cnst.ErrCodeConnection, Message: "WebSocket connection error"},
		})
		s.publishAll(events)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.intentional {
		s.mu.Unlock()
		_ = t.Close(websocket.CloseNormalClosure, cnst.CloseReasonClientDisconnect)
		return
	}
	s.transport = t
	s.reconnectAttempts = 0

	var events []Event
	if ev, changed := s.setStatusLocked(StatusConnected); changed {
		events = append(events, ev)
	}
	sendAuth := !s.authenticationSent
	if sendAuth {
		s.authenticationSent = true
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectAttempt("ok")
	}
	s.logger.Info("websocket connected")

	events = append(events, Event{
		Topic:      TopicConnection,
		Connection: &ConnectionEvent{Status: string(StatusConnected)},
	})
	s.publishAll(events)

	if sendAuth {
		s.Send(cnst.MsgTypeAuthentication, authPayload{
			Token:      identity.DeviceToken,
			DeviceID:   identity.DeviceID,
			CompanyID:  identity.CompanyID,
			LocationID: identity.LocationID,
			Timestamp:  time.Now().UTC().Format(isoMillis),
		})
		s.logger.Info("authentication message sent", zap.String("deviceId", identity.DeviceID))
	}

	go s.readLoop(gen, t)
}

// readLoop pumps inbound frames until the transport fails or closes.
func (s *Session) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			s.handleClose(gen, code, reason)
			return
		}
		s.dispatch(data)
	}
}

// handleClose runs the standard close path: stop the heartbeat, flip to
// disconnected, and schedule reconnection unless the caller asked for the
// disconnect.
func (s *Session) handleClose(gen uint64, code int, reason string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	s.transport = nil
	s.authenticationSent = false
	intentional := s.intentional

	var events []Event
	if ev, changed := s.setStatusLocked(StatusDisconnected); changed {
		events = append(events, ev)
	}
	s.mu.Unlock()

	s.logger.Info("websocket disconnected",
		zap.Int("code", code),
		zap.String("reason", reason))

	events = append(events, Event{
		Topic:      TopicConnection,
		Connection: &ConnectionEvent{Status: string(StatusDisconnected), Code: code, Reason: reason},
	})
	s.publishAll(events)

	if !intentional {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives
// up visibly once the attempt cap is exhausted.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.intentional {
		s.mu.Unlock()
		return
	}
	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		ev, changed := s.setStatusLocked(StatusError)
		s.mu.Unlock()

		s.logger.Error("max reconnection attempts reached")
		var events []Event
		if changed {
			events = append(events, ev)
		}
		events = append(events, Event{
			Topic:      TopicConnection,
			Connection: &ConnectionEvent{Status: "failed"},
		})
		s.publishAll(events)
		return
	}

	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	delay := backoffDelay(attempt, s.cfg.ReconnectInterval)

	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.intentional {
			s.mu.Unlock()
			return
		}
		s.logger.Info("reconnecting", zap.Int("attempt", attempt))
		events, gen := s.establishLocked()
		s.mu.Unlock()
		s.publishAll(events)
		go s.dial(gen)
	})
	s.mu.Unlock()

	s.logger.Info("scheduling reconnection",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// backoffDelay computes the exponential backoff for the given attempt,
// capped at MaxReconnectDelay.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		return cnst.MaxReconnectDelay
	}
	delay := base << shift
	if delay <= 0 || delay > cnst.MaxReconnectDelay {
		return cnst.MaxReconnectDelay
	}
	return delay
}

// startHeartbeatLocked launches the liveness probe. Caller holds s.mu.
func (s *Session) startHeartbeatLocked() {
	s.stopHeartbeatLocked()
	stop := make(chan struct{})
	s.heartbeatStop = stop
	go s.heartbeatLoop(stop)
	s.logger.Debug("heartbeat started")
}

// stopHeartbeatLocked cancels the liveness probe. Caller holds s.mu.
func (s *Session) stopHeartbeatLocked() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

// heartbeatLoop sends a heartbeat each interval and closes the connection
// when the server has not acknowledged one for HeartbeatStaleFactor
// intervals. The close triggers the standard close path and therefore
// reconnection.
func (s *Session) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			t := s.transport
			status := s.status
			last := s.lastHeartbeat
			identity := s.identity
			s.mu.Unlock()

			if t == nil || status != StatusAuthenticated || identity == nil {
				continue
			}

			s.Send(cnst.MsgTypeHeartbeat, heartbeatPayload{
				Timestamp: time.Now().UTC().Format(isoMillis),
				DeviceID:  identity.DeviceID,
			})

			stale := time.Duration(cnst.HeartbeatStaleFactor) * s.cfg.HeartbeatInterval
			if !last.IsZero() && time.Since(last) > stale {
				s.logger.Warn("server not responding to heartbeats, connection may be stale")
				_ = t.Close(websocket.CloseNormalClosure, cnst.CloseReasonHeartbeatTimeout)
			}
		}
	}
}

// setStatusLocked flips the status and builds the change event. Caller
// holds s.mu; the event must be published after unlocking.
func (s *Session) setStatusLocked(status Status) (Event, bool) {
	if s.status == status {
		return Event{}, false
	}
	previous := s.status
	s.status = status
	if s.metrics != nil {
		s.metrics.SetStatus(string(status))
	}
	s.logger.Debug("connection status changed",
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	return Event{
		Topic:  TopicStatusChanged,
		Change: &StatusChange{Status: status, Previous: previous},
	}, true
}

// identityCompanyID returns the paired company id, or zero when unpaired.
func (s *Session) identityCompanyID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return 0
	}
	return s.identity.CompanyID
}

// identitySnapshot returns the current identity, possibly nil.
func (s *Session) identitySnapshot() *device.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) endpoint(deviceID string) string {
	return strings.TrimRight(s.cfg.WSBaseURL, "/") + "/ws/tablet/" + deviceID
}

func (s *Session) publish(event Event) {
	s.bus.Publish(event)
}

func (s *Session) publishAll(events []Event) {
	for _, event := range events {
		s.bus.Publish(event)
	}
}

type authPayload struct {
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId"`
	CompanyID  int64  `json:"companyId"`
	LocationID string `json:"locationId"`
	Timestamp  string `json:"timestamp"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
}
