package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Hub manages the tablet WebSocket connections of the mock CRM.
type Hub struct {
	logger   *zap.Logger
	secret   []byte
	upgrader websocket.Upgrader

	mutex   sync.RWMutex
	tablets map[string]*tabletConn
	acks    []json.RawMessage
}

// tabletConn is one connected tablet. Writes are serialized because
// trigger endpoints and the read loop both send frames.
type tabletConn struct {
	conn          *websocket.Conn
	writeMu       sync.Mutex
	authenticated bool
}

func (t *tabletConn) send(msgType string, payload any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(map[string]any{"type": msgType, "payload": payload})
}

// NewHub creates a hub validating device tokens against secret.
func NewHub(logger *zap.Logger, secret []byte) *Hub {
	return &Hub{
		logger:  logger.Named("hub"),
		secret:  secret,
		tablets: make(map[string]*tabletConn),
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleTabletWebSocket serves /ws/tablet/:deviceId.
func (h *Hub) HandleTabletWebSocket(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	tablet := &tabletConn{conn: conn}
	h.mutex.Lock()
	h.tablets[deviceID] = tablet
	h.mutex.Unlock()

	defer func() {
		h.mutex.Lock()
		if h.tablets[deviceID] == tablet {
			delete(h.tablets, deviceID)
		}
		h.mutex.Unlock()
		h.logger.Info("tablet disconnected", zap.String("deviceId", deviceID))
	}()

	h.logger.Info("tablet connected", zap.String("deviceId", deviceID))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("tablet read error", zap.String("deviceId", deviceID), zap.Error(err))
			}
			return
		}
		h.handleFrame(deviceID, tablet, data)
	}
}

func (h *Hub) handleFrame(deviceID string, tablet *tabletConn, data []byte) {
	msgType := gjson.GetBytes(data, "type").String()
	switch msgType {
	case cnst.MsgTypeAuthentication:
		h.authenticateTablet(deviceID, tablet, data)
	case cnst.MsgTypeHeartbeat:
		// Echo so the client's staleness check stays satisfied.
		_ = tablet.send(cnst.MsgTypeHeartbeat, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	case cnst.MsgTypeSignatureCompleted, cnst.MsgTypeDocumentSignatureCompleted,
		cnst.MsgTypePong, cnst.MsgTypeTabletStatus,
		cnst.MsgTypeDocumentViewingStatus, cnst.MsgTypeSignaturePlacement,
		cnst.MsgTypeSignatureSubmission:
		h.recordAck(data)
		h.logger.Info("tablet message recorded",
			zap.String("deviceId", deviceID),
			zap.String("type", msgType))
	default:
		h.logger.Warn("unknown tablet message",
			zap.String("deviceId", deviceID),
			zap.String("type", msgType))
	}
}

func (h *Hub) authenticateTablet(deviceID string, tablet *tabletConn, data []byte) {
	token := gjson.GetBytes(data, "payload.token").String()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		h.logger.Warn("tablet authentication rejected",
			zap.String("deviceId", deviceID),
			zap.Error(err))
		_ = tablet.send(cnst.MsgTypeAuthentication, map[string]any{
			"status": cnst.AuthStatusFailed,
			"error":  "invalid device token",
		})
		return
	}

	tablet.authenticated = true
	h.logger.Info("tablet authenticated", zap.String("deviceId", deviceID))
	_ = tablet.send(cnst.MsgTypeAuthentication, map[string]any{
		"status":   cnst.AuthStatusAuthenticated,
		"deviceId": deviceID,
	})
}

// Push sends one frame to a connected tablet.
func (h *Hub) Push(deviceID, msgType string, payload any) bool {
	h.mutex.RLock()
	tablet := h.tablets[deviceID]
	h.mutex.RUnlock()
	if tablet == nil {
		return false
	}
	if err := tablet.send(msgType, payload); err != nil {
		h.logger.Error("failed to push message",
			zap.String("deviceId", deviceID),
			zap.String("type", msgType),
			zap.Error(err))
		return false
	}
	return true
}

// Connected lists the device ids currently online.
func (h *Hub) Connected() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	ids := make([]string, 0, len(h.tablets))
	for id := range h.tablets {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) recordAck(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.acks = append(h.acks, json.RawMessage(data))
}

// Acks returns every frame recorded from tablets, for inspection in tests
// and manual runs.
func (h *Hub) Acks() []json.RawMessage {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]json.RawMessage, len(h.acks))
	copy(out, h.acks)
	return out
}
