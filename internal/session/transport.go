package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one underlying bidirectional message socket. Implementations
// must allow WriteMessage and Close to be called concurrently with a
// blocked ReadMessage.
type Transport interface {
	// ReadMessage blocks until the next text frame or a terminal error.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Close sends a close frame with the given status code and reason and
	// tears the socket down, unblocking any pending ReadMessage.
	Close(code int, reason string) error
}

// Dialer opens transports. The session owns reconnection; the dialer only
// performs a single connection attempt.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WSDialer dials WebSocket endpoints with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

var _ Dialer = (*WSDialer)(nil)

// Dial implements Dialer.Dial
func (d *WSDialer) Dial(ctx context.Context, url string) (Transport, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSTransport(conn), nil
}

// wsTransport adapts a gorilla connection to the Transport interface.
// gorilla permits one concurrent writer only, so writes are serialized.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// ReadMessage implements Transport.ReadMessage
func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
		// Binary frames are not part of the protocol.
	}
}

// WriteMessage implements Transport.WriteMessage
func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements Transport.Close
func (t *wsTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// closeInfo extracts the close code and reason from a read error.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
