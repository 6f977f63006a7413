// Package arbiter tracks which signature sessions are active on the tablet
// and guarantees each one is acknowledged to the backend at most once,
// whether it completes, expires, or is cancelled.
package arbiter

import (
	"sync"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/request"
	"github.com/autoserwis/signpad/internal/session"
	"github.com/autoserwis/signpad/pkg/metrics"
	"go.uber.org/zap"
)

// Acknowledger is the outbound surface the arbiter reports outcomes on.
// *session.Session satisfies it.
type Acknowledger interface {
	AcknowledgeSignatureCompletion(sessionID string, success bool)
	AcknowledgeDocumentSignatureCompletion(sessionID string, success bool)
}

var _ Acknowledger = (*session.Session)(nil)

// slot is one variant's active session. A variant holds at most one
// session; a newer request replaces the older one.
type slot struct {
	sessionID string
	expiresAt time.Time
	timer     *time.Timer

	plain    *request.PlainSignatureRequest
	simple   *request.SimpleSignatureRequest
	document *request.DocumentSignatureRequest
}

// ackedHistory caps how many resolved session ids are remembered for
// duplicate suppression.
const ackedHistory = 256

// Arbiter owns the per-variant active session slots.
type Arbiter struct {
	logger  *zap.Logger
	ack     Acknowledger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.Mutex
	slots      map[request.Variant]*slot
	acked      map[string]struct{}
	ackedOrder []string
}

// Options carries optional Arbiter collaborators.
type Options struct {
	Metrics *metrics.Metrics
}

// New creates an arbiter reporting outcomes through ack.
func New(logger *zap.Logger, ack Acknowledger, opts Options) *Arbiter {
	return &Arbiter{
		logger:  logger.Named("arbiter"),
		ack:     ack,
		metrics: opts.Metrics,
		now:     time.Now,
		slots:   make(map[request.Variant]*slot),
		acked:   make(map[string]struct{}),
	}
}

// Bind subscribes the arbiter to the session's request and cancellation
// topics and returns a function removing all subscriptions.
func (a *Arbiter) Bind(s *session.Session) func() {
	unsubs := []func(){
		s.On(session.TopicSignatureRequest, func(ev session.Event) {
			a.SetPlain(ev.Plain)
		}),
		s.On(session.TopicSimpleSignatureRequest, func(ev session.Event) {
			a.SetSimple(ev.Simple)
		}),
		s.On(session.TopicDocumentSignatureRequest, func(ev session.Event) {
			a.SetDocument(ev.Document)
		}),
		s.On(session.TopicSessionCancelled, func(ev session.Event) {
			a.Cancel(ev.Cancelled.SessionID)
		}),
		s.On(session.TopicSimpleSessionCancelled, func(ev session.Event) {
			a.Cancel(ev.Cancelled.SessionID)
		}),
		s.On(session.TopicDocumentSessionCancelled, func(ev session.Event) {
			a.Cancel(ev.Cancelled.SessionID)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// SetPlain activates a plain signature session. Plain requests carry no
// expiry on the wire; they time out after the fixed signature timeout.
func (a *Arbiter) SetPlain(req *request.PlainSignatureRequest) {
	if req == nil {
		return
	}
	a.set(request.VariantPlain, &slot{
		sessionID: req.SessionID,
		expiresAt: a.now().Add(cnst.DefaultSignatureTimeout),
		plain:     req,
	})
}

// SetSimple activates a simple signature session.
func (a *Arbiter) SetSimple(req *request.SimpleSignatureRequest) {
	if req == nil {
		return
	}
	a.set(request.VariantSimple, &slot{
		sessionID: req.SessionID,
		expiresAt: a.expiry(req.ExpiresAt, req.TimeoutMinutes),
		simple:    req,
	})
}

// SetDocument activates a document signature session.
func (a *Arbiter) SetDocument(req *request.DocumentSignatureRequest) {
	if req == nil {
		return
	}
	a.set(request.VariantDocument, &slot{
		sessionID: req.SessionID,
		expiresAt: a.expiry(req.ExpiresAt, req.TimeoutMinutes),
		document:  req,
	})
}

// set installs the slot for its variant, displacing any previous session.
// The displaced session is not acknowledged: the backend replaced it and
// owns its lifecycle.
func (a *Arbiter) set(variant request.Variant, sl *slot) {
	a.mu.Lock()
	if prev := a.slots[variant]; prev != nil {
		prev.timer.Stop()
		a.logger.Info("active session replaced",
			zap.String("variant", string(variant)),
			zap.String("previous", prev.sessionID),
			zap.String("sessionId", sl.sessionID))
	}
	remaining := sl.expiresAt.Sub(a.now())
	sessionID := sl.sessionID
	sl.timer = time.AfterFunc(remaining, func() {
		a.expire(variant, sessionID)
	})
	a.slots[variant] = sl
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.SetActiveSessions(string(variant), 1)
	}
	a.logger.Info("session activated",
		zap.String("variant", string(variant)),
		zap.String("sessionId", sessionID),
		zap.Duration("expiresIn", remaining))
}

// Complete resolves the active session with the given outcome and sends
// its acknowledgment. Unknown or already resolved sessions are ignored.
func (a *Arbiter) Complete(sessionID string, success bool) {
	a.mu.Lock()
	variant, ok := a.clearLocked(sessionID)
	if !ok || !a.markAckedLocked(sessionID) {
		a.mu.Unlock()
		a.logger.Debug("ignoring completion for unknown or resolved session",
			zap.String("sessionId", sessionID))
		return
	}
	a.mu.Unlock()

	a.logger.Info("session completed",
		zap.String("variant", string(variant)),
		zap.String("sessionId", sessionID),
		zap.Bool("success", success))
	a.acknowledge(variant, sessionID, success)
}

// Cancel drops the active session without acknowledgment, used when the
// backend cancels it server-side.
func (a *Arbiter) Cancel(sessionID string) {
	a.mu.Lock()
	variant, ok := a.clearLocked(sessionID)
	if ok {
		a.markAckedLocked(sessionID)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	if a.metrics != nil {
		a.metrics.SetActiveSessions(string(variant), 0)
	}
	a.logger.Info("session cancelled",
		zap.String("variant", string(variant)),
		zap.String("sessionId", sessionID))
}

// expire runs when a session's timer fires: a failure acknowledgment goes
// out exactly once and the slot frees up.
func (a *Arbiter) expire(variant request.Variant, sessionID string) {
	a.mu.Lock()
	sl := a.slots[variant]
	if sl == nil || sl.sessionID != sessionID || !a.markAckedLocked(sessionID) {
		a.mu.Unlock()
		return
	}
	delete(a.slots, variant)
	a.mu.Unlock()

	a.logger.Warn("session expired",
		zap.String("variant", string(variant)),
		zap.String("sessionId", sessionID))
	a.acknowledge(variant, sessionID, false)
}

// Resolve returns the variant currently holding the session.
func (a *Arbiter) Resolve(sessionID string) (request.Variant, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for variant, sl := range a.slots {
		if sl.sessionID == sessionID {
			return variant, true
		}
	}
	return "", false
}

// Plain returns the active plain session, if any.
func (a *Arbiter) Plain() *request.PlainSignatureRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sl := a.slots[request.VariantPlain]; sl != nil {
		return sl.plain
	}
	return nil
}

// Simple returns the active simple session, if any.
func (a *Arbiter) Simple() *request.SimpleSignatureRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sl := a.slots[request.VariantSimple]; sl != nil {
		return sl.simple
	}
	return nil
}

// Document returns the active document session, if any.
func (a *Arbiter) Document() *request.DocumentSignatureRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sl := a.slots[request.VariantDocument]; sl != nil {
		return sl.document
	}
	return nil
}

// Display names the variant the signing surface should show. Document
// sessions win over plain ones; simple sessions only surface when nothing
// else is active.
func (a *Arbiter) Display() (request.Variant, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, variant := range []request.Variant{request.VariantDocument, request.VariantPlain, request.VariantSimple} {
		if a.slots[variant] != nil {
			return variant, true
		}
	}
	return "", false
}

// Remaining reports the time until the variant's session expires.
func (a *Arbiter) Remaining(variant request.Variant) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sl := a.slots[variant]
	if sl == nil {
		return 0, false
	}
	remaining := sl.expiresAt.Sub(a.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Close stops all timers without acknowledging anything, used at shutdown.
func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for variant, sl := range a.slots {
		sl.timer.Stop()
		delete(a.slots, variant)
	}
}

// clearLocked removes the session's slot and stops its timer. Caller
// holds a.mu.
func (a *Arbiter) clearLocked(sessionID string) (request.Variant, bool) {
	for variant, sl := range a.slots {
		if sl.sessionID == sessionID {
			sl.timer.Stop()
			delete(a.slots, variant)
			return variant, true
		}
	}
	return "", false
}

// markAckedLocked records the session as resolved and reports whether this
// call was the first to do so. Caller holds a.mu.
func (a *Arbiter) markAckedLocked(sessionID string) bool {
	if _, done := a.acked[sessionID]; done {
		return false
	}
	a.acked[sessionID] = struct{}{}
	a.ackedOrder = append(a.ackedOrder, sessionID)
	if len(a.ackedOrder) > ackedHistory {
		delete(a.acked, a.ackedOrder[0])
		a.ackedOrder = a.ackedOrder[1:]
	}
	return true
}

func (a *Arbiter) acknowledge(variant request.Variant, sessionID string, success bool) {
	switch variant {
	case request.VariantDocument:
		a.ack.AcknowledgeDocumentSignatureCompletion(sessionID, success)
	default:
		a.ack.AcknowledgeSignatureCompletion(sessionID, success)
	}
	if a.metrics != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		a.metrics.Acknowledged(string(variant), outcome)
		a.metrics.SetActiveSessions(string(variant), 0)
	}
}

// expiry parses the normalized expiry timestamp; a malformed value falls
// back to the timeout from now.
func (a *Arbiter) expiry(expiresAt string, timeoutMinutes int) time.Time {
	if ts, err := time.Parse(time.RFC3339, expiresAt); err == nil {
		return ts
	}
	return a.now().Add(time.Duration(timeoutMinutes) * time.Minute)
}
