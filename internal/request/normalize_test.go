package request

import (
	"strings"
	"testing"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(zap.NewNop())
	n.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return n
}

func TestPlain_NumericTimestampAndAliases(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{
		"sessionId": "s1",
		"customerName": "Jan Kowalski",
		"vehicleInfo": {"make": "VW", "model": "Golf", "license_plate": "WA12345"},
		"timestamp": 1700000000
	}`)

	req, verr := n.Plain(payload, 0)
	require.Nil(t, verr)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "Jan Kowalski", req.CustomerName)
	assert.Equal(t, "WA12345", req.VehicleInfo.LicensePlate)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", req.Timestamp)

	// defaults
	assert.Equal(t, "unknown", req.WorkstationID)
	assert.Equal(t, "doc-s1", req.DocumentID)
	assert.Equal(t, int64(cnst.FallbackPlainCompanyID), req.CompanyID)
	assert.Equal(t, "", req.VehicleInfo.VIN)
}

func TestPlain_StringTimestampPassthrough(t *testing.T) {
	n := newTestNormalizer()

	req, verr := n.Plain([]byte(`{"sessionId":"s1","customerName":"A","timestamp":"2024-01-02T03:04:05.000Z"}`), 7)
	require.Nil(t, verr)
	assert.Equal(t, "2024-01-02T03:04:05.000Z", req.Timestamp)
	assert.Equal(t, int64(7), req.CompanyID)
}

func TestPlain_MissingTimestampDefaultsToNow(t *testing.T) {
	n := newTestNormalizer()

	req, verr := n.Plain([]byte(`{"sessionId":"s1","customerName":"A"}`), 0)
	require.Nil(t, verr)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", req.Timestamp)
}

func TestPlain_MissingRequiredFields(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name    string
		payload string
	}{
		{"no session id", `{"customerName":"A"}`},
		{"no customer name", `{"sessionId":"s1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, verr := n.Plain([]byte(tt.payload), 0)
			assert.Nil(t, req)
			require.NotNil(t, verr)
			assert.Equal(t, cnst.ErrCodeMissingRequiredField, verr.Code)
		})
	}
}

func TestPlain_CompanyIDPrecedence(t *testing.T) {
	n := newTestNormalizer()

	// payload wins
	req, _ := n.Plain([]byte(`{"sessionId":"s1","customerName":"A","companyId":9}`), 7)
	assert.Equal(t, int64(9), req.CompanyID)

	// identity next
	req, _ = n.Plain([]byte(`{"sessionId":"s1","customerName":"A"}`), 7)
	assert.Equal(t, int64(7), req.CompanyID)

	// hardcoded fallback last
	req, _ = n.Plain([]byte(`{"sessionId":"s1","customerName":"A"}`), 0)
	assert.Equal(t, int64(cnst.FallbackPlainCompanyID), req.CompanyID)
}

func TestSimple_DefaultsAndContext(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{
		"sessionId": "sim-1",
		"signerName": "Anna Nowak",
		"signatureTitle": "Odbiór pojazdu",
		"businessContext": {"orderId": 42},
		"timeoutMinutes": 10,
		"signatureType": "RECEIPT"
	}`)

	req, verr := n.Simple(payload, 3)
	require.Nil(t, verr)
	assert.Equal(t, "sim-1", req.SessionID)
	assert.Equal(t, int64(3), req.CompanyID)
	assert.Equal(t, SignatureTypeReceipt, req.SignatureType)
	assert.Equal(t, 10, req.TimeoutMinutes)
	assert.Equal(t, "2024-03-01T12:10:00.000Z", req.ExpiresAt)
	require.NotNil(t, req.BusinessContext)
	assert.EqualValues(t, 42, req.BusinessContext["orderId"])
}

func TestSimple_MissingSignerName(t *testing.T) {
	n := newTestNormalizer()

	req, verr := n.Simple([]byte(`{"sessionId":"sim-1"}`), 0)
	assert.Nil(t, req)
	require.NotNil(t, verr)
	assert.Equal(t, cnst.ErrCodeMissingRequiredField, verr.Code)
}

func validDocumentPayload() string {
	return `{
		"sessionId": "doc-7",
		"signerName": "Anna Nowak",
		"documentTitle": "Protokół przekazania",
		"documentData": "data:application/pdf;base64,JVBERi0xLjQ=",
		"documentSize": 1024,
		"pageCount": 3,
		"expiresAt": "2024-03-01T12:30:00.000Z",
		"signatureFields": [
			{"fieldId": "f1", "page": 3, "x": 0.1, "y": 0.8, "width": 0.3, "height": 0.1, "required": true}
		]
	}`
}

func TestDocument_Valid(t *testing.T) {
	n := newTestNormalizer()

	req, verr := n.Document([]byte(validDocumentPayload()), 0)
	require.Nil(t, verr)
	assert.Equal(t, "doc-7", req.SessionID)
	assert.Equal(t, "Protokół przekazania", req.DocumentTitle)
	assert.Equal(t, 3, req.PageCount)
	assert.Equal(t, "PROTOCOL", req.DocumentType)
	assert.Equal(t, cnst.DefaultDocumentTimeoutMinutes, req.TimeoutMinutes)
	assert.Equal(t, "2024-03-01T12:30:00.000Z", req.ExpiresAt)
	assert.Equal(t, int64(cnst.FallbackCompanyID), req.CompanyID)
	assert.Equal(t, int64(1024), req.Document.Size)
	require.Len(t, req.SignatureFields, 1)
	assert.Equal(t, "f1", req.SignatureFields[0].FieldID)
	assert.True(t, req.SignatureFields[0].Required)
}

func TestDocument_Rejections(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{
			name:     "missing signer name",
			payload:  `{"sessionId":"d1","documentTitle":"T","documentData":"data:application/pdf;base64,AA=="}`,
			wantCode: cnst.ErrCodeMissingRequiredField,
		},
		{
			name:     "missing document data",
			payload:  `{"sessionId":"d1","signerName":"A","documentTitle":"T"}`,
			wantCode: cnst.ErrCodeDocumentMissing,
		},
		{
			name:     "document too large",
			payload:  `{"sessionId":"d1","signerName":"A","documentTitle":"T","documentData":"data:application/pdf;base64,AA==","documentSize":10485761}`,
			wantCode: cnst.ErrCodeDocumentTooLarge,
		},
		{
			name:     "not a pdf data uri",
			payload:  `{"sessionId":"d1","signerName":"A","documentTitle":"T","documentData":"data:image/png;base64,AA=="}`,
			wantCode: cnst.ErrCodeInvalidDocumentFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, verr := n.Document([]byte(tt.payload), 0)
			assert.Nil(t, req)
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantCode, verr.Code)
		})
	}
}

func TestDocument_SizeAtCeilingAccepted(t *testing.T) {
	n := newTestNormalizer()

	payload := strings.Replace(validDocumentPayload(), `"documentSize": 1024`, `"documentSize": 10485760`, 1)
	req, verr := n.Document([]byte(payload), 0)
	require.Nil(t, verr)
	assert.Equal(t, int64(cnst.MaxDocumentSize), req.Document.Size)
}

func TestValidationError_Error(t *testing.T) {
	verr := newValidationError(cnst.ErrCodeParse, "bad %s", "frame")
	assert.Equal(t, "PARSE_ERROR: bad frame", verr.Error())
}
