// Package api is the REST client for the CRM backend, covering the flows
// that run outside the WebSocket: device pairing, signature submission,
// document retrieval, branding and status reporting.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/device"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes the REST client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = cnst.DefaultAPITimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = cnst.DefaultAPIRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = cnst.DefaultAPIRetryDelay
	}
}

// Client talks to the CRM REST API on behalf of one paired device.
type Client struct {
	logger *zap.Logger
	cfg    Config
	http   *http.Client

	identity func() *device.Identity
}

// NewClient creates a REST client. identity supplies the current device
// credentials per request; it may return nil before pairing.
func NewClient(cfg Config, logger *zap.Logger, identity func() *device.Identity) *Client {
	cfg.setDefaults()
	return &Client{
		logger:   logger.Named("api"),
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		identity: identity,
	}
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api: http %d", e.StatusCode)
}

// PairRequest initiates pairing with a code shown in the CRM.
type PairRequest struct {
	PairingCode string `json:"pairingCode"`
	DeviceName  string `json:"deviceName"`
}

// PairResponse carries the credentials issued for the device.
type PairResponse struct {
	DeviceID    string `json:"deviceId"`
	DeviceToken string `json:"deviceToken"`
	CompanyID   int64  `json:"companyId"`
	LocationID  string `json:"locationId"`
}

// Pair exchanges a pairing code for device credentials. Pairing runs
// before any identity exists, so the request goes out unauthenticated.
func (c *Client) Pair(ctx context.Context, req PairRequest) (*PairResponse, error) {
	var resp PairResponse
	if err := c.do(ctx, http.MethodPost, "/tablets/pair", req, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("device paired",
		zap.String("deviceId", resp.DeviceID),
		zap.Int64("companyId", resp.CompanyID))
	return &resp, nil
}

// SignatureSubmission is the captured signature pushed after signing.
type SignatureSubmission struct {
	SessionID     string `json:"sessionId"`
	SignatureData string `json:"signatureData"`
	SignedAt      string `json:"signedAt"`
	DeviceID      string `json:"deviceId"`
}

// SubmitSignature uploads a captured signature image, retrying transient
// failures. The data must be an image data URI within the size limit.
func (c *Client) SubmitSignature(ctx context.Context, sub SignatureSubmission) error {
	if !strings.HasPrefix(sub.SignatureData, "data:image/") {
		return fmt.Errorf("signature data must be an image data URI")
	}
	if len(sub.SignatureData) > cnst.MaxSignatureSize {
		return fmt.Errorf("signature data exceeds %d bytes", cnst.MaxSignatureSize)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		lastErr = c.do(ctx, http.MethodPost, "/signatures", sub, nil)
		if lastErr == nil {
			c.logger.Info("signature submitted",
				zap.String("sessionId", sub.SessionID),
				zap.Int("attempt", attempt))
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		c.logger.Warn("signature submission failed, retrying",
			zap.String("sessionId", sub.SessionID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return lastErr
}

// ProtocolDocument is a service protocol PDF fetched over REST, used by
// sessions whose payload references a document instead of embedding it.
type ProtocolDocument struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Data       string `json:"documentData"`
	PageCount  int    `json:"pageCount"`
}

// FetchProtocolDocument retrieves the protocol PDF for a session.
func (c *Client) FetchProtocolDocument(ctx context.Context, sessionID string) (*ProtocolDocument, error) {
	var doc ProtocolDocument
	if err := c.do(ctx, http.MethodGet, "/protocols/"+sessionID+"/document", nil, &doc); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(doc.Data, cnst.PDFDataURIPrefix) {
		return nil, fmt.Errorf("protocol document is not a base64 PDF")
	}
	return &doc, nil
}

// TabletStatus is the periodic telemetry report.
type TabletStatus struct {
	DeviceID     string `json:"deviceId"`
	Status       string `json:"status"`
	BatteryLevel *int   `json:"batteryLevel,omitempty"`
	Orientation  string `json:"orientation"`
	IsActive     bool   `json:"isActive"`
	AppVersion   string `json:"appVersion"`
	ReportedAt   string `json:"reportedAt"`
}

// UpdateTabletStatus reports tablet telemetry over REST, complementing the
// socket-borne tablet_status frames.
func (c *Client) UpdateTabletStatus(ctx context.Context, status TabletStatus) error {
	return c.do(ctx, http.MethodPut, "/tablets/"+status.DeviceID+"/status", status, nil)
}

// GetCompanyBranding fetches the paired company's branding for the signing
// surface.
func (c *Client) GetCompanyBranding(ctx context.Context, companyID int64) (*device.Branding, error) {
	var branding device.Branding
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/companies/%d/branding", companyID), nil, &branding); err != nil {
		return nil, err
	}
	return &branding, nil
}

// do executes one JSON request with authentication and correlation
// headers, decoding the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if identity := c.identity(); identity != nil {
		req.Header.Set("Authorization", "Bearer "+identity.DeviceToken)
		req.Header.Set("X-Device-ID", identity.DeviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable reports whether the error is worth another attempt: network
// failures and server-side statuses are, client errors are not.
func retryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
