package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu          sync.Mutex
	in          chan []byte
	writes      [][]byte
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16)}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-t.in
	if !ok {
		return nil, errors.New("use of closed connection")
	}
	return data, nil
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.writes = append(t.writes, data)
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.closeCode = code
	t.closeReason = reason
	close(t.in)
	return nil
}

// serve feeds one frame to the read loop.
func (t *fakeTransport) serve(msgType string, payload any) {
	data, _ := json.Marshal(outEnvelope{Type: msgType, Payload: payload})
	t.in <- data
}

func (t *fakeTransport) written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *fakeTransport) closeState() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closeCode, t.closeReason
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	calls      int
	urls       []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

// recorder collects published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testIdentity() *device.Identity {
	return &device.Identity{
		DeviceID:    "tablet-001",
		DeviceToken: "token-abc",
		CompanyID:   42,
		LocationID:  "loc-1",
	}
}

func newTestSession(t *testing.T, dialer Dialer, cfg Config) *Session {
	t.Helper()
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://crm.test"
	}
	return New(cfg, zap.NewNop(), Options{Dialer: dialer})
}

func authenticate(t *testing.T, s *Session, ft *fakeTransport) {
	t.Helper()
	ft.serve(cnst.MsgTypeAuthentication, map[string]any{"status": "authenticated"})
	require.Eventually(t, s.IsAuthenticated, time.Second, 5*time.Millisecond)
}

func TestConnectAndAuthenticate(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	statuses := &recorder{}
	s.On(TopicStatusChanged, statuses.record)
	authed := &recorder{}
	s.On(TopicAuthenticated, authed.record)

	s.Connect(testIdentity())

	require.Eventually(t, func() bool { return dialer.dialCount() == 1 }, time.Second, 5*time.Millisecond)
	ft := dialer.transport(0)
	require.NotNil(t, ft)

	dialer.mu.Lock()
	assert.Equal(t, "wss://crm.test/ws/tablet/tablet-001", dialer.urls[0])
	dialer.mu.Unlock()

	// The authentication envelope goes out once, immediately after connect.
	require.Eventually(t, func() bool { return len(ft.written()) == 1 }, time.Second, 5*time.Millisecond)
	frame := ft.written()[0]
	assert.Equal(t, cnst.MsgTypeAuthentication, gjson.GetBytes(frame, "type").String())
	assert.Equal(t, "token-abc", gjson.GetBytes(frame, "payload.token").String())
	assert.Equal(t, "tablet-001", gjson.GetBytes(frame, "payload.deviceId").String())
	assert.Equal(t, int64(42), gjson.GetBytes(frame, "payload.companyId").Int())
	assert.Equal(t, "loc-1", gjson.GetBytes(frame, "payload.locationId").String())

	authenticate(t, s, ft)
	assert.Equal(t, StatusAuthenticated, s.Status())
	assert.True(t, s.IsConnected())

	require.Eventually(t, func() bool { return authed.count() == 1 }, time.Second, 5*time.Millisecond)

	var seen []Status
	for _, ev := range statuses.snapshot() {
		seen = append(seen, ev.Change.Status)
	}
	assert.Equal(t, []Status{StatusConnecting, StatusConnected, StatusAuthenticated}, seen)
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)

	s.Connect(testIdentity())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestConnectRejectsInvalidIdentity(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	s.Connect(&device.Identity{DeviceID: "tablet-001"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, dialer.dialCount())
	assert.Equal(t, StatusDisconnected, s.Status())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	conns := &recorder{}
	s.On(TopicConnection, conns.record)

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)

	s.Disconnect()
	assert.Equal(t, StatusDisconnected, s.Status())

	closed, code, reason := dialer.transport(0).closeState()
	assert.True(t, closed)
	assert.Equal(t, 1000, code)
	assert.Equal(t, cnst.CloseReasonClientDisconnect, reason)

	// Events settle, then a second Disconnect adds nothing.
	time.Sleep(20 * time.Millisecond)
	before := conns.count()
	s.Disconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, conns.count())

	// No reconnection after an intentional disconnect.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestSendDropsWhenDisconnected(t *testing.T) {
	s := newTestSession(t, &fakeDialer{}, Config{})

	assert.NotPanics(t, func() {
		s.Send(cnst.MsgTypeHeartbeat, map[string]any{"timestamp": "now"})
	})
}

func TestAuthenticationFailure(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	failures := &recorder{}
	s.On(TopicAuthenticationFailed, failures.record)
	errs := &recorder{}
	s.On(TopicError, errs.record)

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)

	dialer.transport(0).serve(cnst.MsgTypeAuthentication, map[string]any{
		"status": "failed",
		"error":  "device token revoked",
	})

	require.Eventually(t, func() bool { return s.Status() == StatusError }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return failures.count() == 1 && errs.count() == 1 }, time.Second, 5*time.Millisecond)

	got := errs.snapshot()[0].Error
	assert.Equal(t, cnst.ErrCodeAuthenticationFailed, got.Code)
	assert.Equal(t, "device token revoked", got.Message)
}

func TestReconnectAfterServerClose(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{ReconnectInterval: 5 * time.Millisecond})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)

	dialer.transport(0).Close(1006, "gone")

	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	s := newTestSession(t, dialer, Config{
		ReconnectInterval:    time.Millisecond,
		MaxReconnectAttempts: 2,
	})

	conns := &recorder{}
	s.On(TopicConnection, conns.record)

	s.Connect(testIdentity())

	require.Eventually(t, func() bool { return s.Status() == StatusError && dialer.dialCount() == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, ev := range conns.snapshot() {
			if ev.Connection != nil && ev.Connection.Status == "failed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// The timer chain is exhausted, no further attempts fire.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, dialer.dialCount())
}

func TestManualReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)

	s.Reconnect()
	assert.Equal(t, StatusDisconnected, s.Status())

	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)
}

func TestHeartbeatTimeoutClosesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{
		ReconnectInterval: 5 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)
	ft := dialer.transport(0)
	authenticate(t, s, ft)

	s.mu.Lock()
	s.lastHeartbeat = time.Now().Add(-time.Second)
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		closed, _, reason := ft.closeState()
		return closed && reason == cnst.CloseReasonHeartbeatTimeout
	}, time.Second, 5*time.Millisecond)

	// The stale close runs the standard close path and redials.
	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatRefreshedByServer(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{HeartbeatInterval: 10 * time.Millisecond})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)
	ft := dialer.transport(0)
	authenticate(t, s, ft)

	// Keep acknowledging; the connection must stay up.
	for i := 0; i < 5; i++ {
		ft.serve(cnst.MsgTypeHeartbeat, map[string]any{"timestamp": "now"})
		time.Sleep(10 * time.Millisecond)
	}

	closed, _, _ := ft.closeState()
	assert.False(t, closed)
	assert.True(t, s.IsAuthenticated())
}

func TestStats(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, dialer, Config{})

	s.Connect(testIdentity())
	require.Eventually(t, s.IsConnected, time.Second, 5*time.Millisecond)
	authenticate(t, s, dialer.transport(0))

	stats := s.Stats()
	assert.Equal(t, StatusAuthenticated, stats.Status)
	assert.True(t, stats.Authenticated)
	assert.Equal(t, "tablet-001", stats.DeviceID)
	assert.Equal(t, int64(42), stats.CompanyID)
	assert.Equal(t, 0, stats.ReconnectAttempts)
	assert.False(t, stats.LastHeartbeat.IsZero())
}

func TestBackoffDelay(t *testing.T) {
	base := 3 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 12 * time.Second},
		{4, 24 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(tt.attempt, base), "attempt %d", tt.attempt)
	}
}
