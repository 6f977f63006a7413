// mock-crm is a development stand-in for the CRM backend: it issues device
// credentials, accepts tablet WebSocket connections, and exposes admin
// endpoints to push signature sessions to connected tablets.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	addr   string
	secret string

	rootCmd = &cobra.Command{
		Use:   "mock-crm",
		Short: "Mock CRM backend for signpad development",
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	rootCmd.Flags().StringVar(&secret, "secret", "mock-crm-secret", "device token signing secret")
}

func run() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	hub := NewHub(logger, []byte(secret))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws/tablet/:deviceId", hub.HandleTabletWebSocket)

	v1 := r.Group("/api/v1")
	v1.POST("/tablets/pair", handlePair(logger))
	v1.PUT("/tablets/:deviceId/status", handleStatus(logger))
	v1.POST("/signatures", handleSignature(logger))
	v1.GET("/protocols/:sessionId/document", handleProtocolDocument)
	v1.GET("/companies/:companyId/branding", handleBranding)

	admin := r.Group("/admin")
	admin.GET("/tablets", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"connected": hub.Connected()})
	})
	admin.GET("/acks", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"acks": hub.Acks()})
	})
	admin.POST("/tablets/:deviceId/push/:type", handlePush(hub))

	logger.Info("mock CRM listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func handlePair(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PairingCode string `json:"pairingCode"`
			DeviceName  string `json:"deviceName"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.PairingCode == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_PAIRING_CODE",
				"message": "pairing code required",
			})
			return
		}

		deviceID := "tablet-" + uuid.NewString()[:8]
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": deviceID,
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(30 * 24 * time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		logger.Info("device paired",
			zap.String("deviceId", deviceID),
			zap.String("deviceName", req.DeviceName))
		c.JSON(http.StatusOK, gin.H{
			"deviceId":    deviceID,
			"deviceToken": signed,
			"companyId":   1,
			"locationId":  "loc-mock",
		})
	}
}

func handleStatus(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Info("tablet status reported", zap.String("deviceId", c.Param("deviceId")))
		c.Status(http.StatusNoContent)
	}
}

func handleSignature(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sub struct {
			SessionID     string `json:"sessionId"`
			SignatureData string `json:"signatureData"`
		}
		if err := c.ShouldBindJSON(&sub); err != nil || sub.SessionID == "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"code":    "INVALID_SESSION",
				"message": "session id required",
			})
			return
		}
		logger.Info("signature received",
			zap.String("sessionId", sub.SessionID),
			zap.Int("size", len(sub.SignatureData)))
		c.Status(http.StatusCreated)
	}
}

func handleProtocolDocument(c *gin.Context) {
	// A one-page placeholder PDF, enough for the client's format checks.
	c.JSON(http.StatusOK, gin.H{
		"documentId":   "doc-" + c.Param("sessionId"),
		"title":        "Protokół serwisowy",
		"documentData": cnst.PDFDataURIPrefix + "JVBERi0xLjQK",
		"pageCount":    1,
	})
}

func handleBranding(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"companyName":    "Auto Serwis Mock",
		"primaryColor":   "#003366",
		"secondaryColor": "#ff9900",
	})
}

// handlePush relays an arbitrary frame to a connected tablet, e.g.
// POST /admin/tablets/tablet-01/push/signature_request with the payload as
// the request body.
func handlePush(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload json.RawMessage
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "payload must be JSON"})
			return
		}
		if !hub.Push(c.Param("deviceId"), c.Param("type"), payload) {
			c.JSON(http.StatusNotFound, gin.H{"message": "tablet not connected"})
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
