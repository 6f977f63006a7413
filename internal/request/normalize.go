package request

import (
	"strings"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// isoMillis matches the timestamp format the backend and the signing UI
// exchange (RFC 3339 with millisecond precision).
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Normalizer turns raw inbound payloads into canonical request variants.
// Payload shapes vary between backend versions: field names arrive in
// camelCase or snake_case, timestamps as epoch seconds or ISO strings, and
// optional fields may be absent entirely. Nothing downstream of the
// normalizer ever sees a raw payload.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.Named("normalizer"),
		now:    time.Now,
	}
}

// Plain normalizes a signature_request payload. deviceCompanyID is the
// paired identity's company id, used when the payload carries none.
func (n *Normalizer) Plain(payload []byte, deviceCompanyID int64) (*PlainSignatureRequest, *ValidationError) {
	sessionID := str(payload, "sessionId", "session_id")
	customerName := str(payload, "customerName", "customer_name")
	if sessionID == "" || customerName == "" {
		n.logger.Error("invalid signature request",
			zap.String("sessionId", sessionID),
			zap.String("customerName", customerName))
		return nil, newValidationError(cnst.ErrCodeMissingRequiredField,
			"signature request missing session id or customer name")
	}

	vehicle := gjson.GetBytes(payload, "vehicleInfo")
	if !vehicle.Exists() {
		vehicle = gjson.GetBytes(payload, "vehicle_info")
	}

	req := &PlainSignatureRequest{
		SessionID:     sessionID,
		WorkstationID: strOr(payload, "unknown", "workstationId", "workstation_id"),
		CompanyID:     n.companyID(payload, deviceCompanyID, cnst.FallbackPlainCompanyID),
		CustomerName:  customerName,
		VehicleInfo: VehicleInfo{
			Make:         vehicle.Get("make").String(),
			Model:        vehicle.Get("model").String(),
			LicensePlate: firstOf(vehicle, "licensePlate", "license_plate"),
			VIN:          vehicle.Get("vin").String(),
		},
		ServiceType:  strOr(payload, "Usługa serwisowa", "serviceType", "service_type"),
		DocumentID:   strOr(payload, "doc-"+sessionID, "documentId", "document_id"),
		DocumentType: strOr(payload, "Potwierdzenie wykonania usługi", "documentType", "document_type"),
		Timestamp:    n.timestamp(gjson.GetBytes(payload, "timestamp")),
	}
	return req, nil
}

// Simple normalizes a simple_signature_request payload.
func (n *Normalizer) Simple(payload []byte, deviceCompanyID int64) (*SimpleSignatureRequest, *ValidationError) {
	sessionID := str(payload, "sessionId", "session_id")
	signerName := str(payload, "signerName", "signer_name")
	if sessionID == "" || signerName == "" {
		n.logger.Error("invalid simple signature request",
			zap.String("sessionId", sessionID),
			zap.String("signerName", signerName))
		return nil, newValidationError(cnst.ErrCodeMissingRequiredField,
			"simple signature request missing session id or signer name")
	}

	timeoutMinutes := intOr(payload, int(cnst.DefaultSignatureTimeout/time.Minute), "timeoutMinutes", "timeout_minutes")

	req := &SimpleSignatureRequest{
		SessionID:         sessionID,
		CompanyID:         n.companyID(payload, deviceCompanyID, cnst.FallbackCompanyID),
		SignerName:        signerName,
		SignatureTitle:    strOr(payload, "Podpis", "signatureTitle", "signature_title"),
		Instructions:      str(payload, "instructions"),
		BusinessContext:   contextMap(payload),
		TimeoutMinutes:    timeoutMinutes,
		ExpiresAt:         n.expiry(payload, timeoutMinutes),
		ExternalReference: str(payload, "externalReference", "external_reference"),
		SignatureType:     SignatureType(strOr(payload, string(SignatureTypeGeneral), "signatureType", "signature_type")),
	}
	return req, nil
}

// Document normalizes a document_signature_request payload, validating the
// embedded PDF before any request object is produced.
func (n *Normalizer) Document(payload []byte, deviceCompanyID int64) (*DocumentSignatureRequest, *ValidationError) {
	sessionID := str(payload, "sessionId", "session_id")
	signerName := str(payload, "signerName", "signer_name")
	documentTitle := str(payload, "documentTitle", "document_title")
	if sessionID == "" || signerName == "" || documentTitle == "" {
		n.logger.Error("invalid document signature request",
			zap.String("sessionId", sessionID),
			zap.String("signerName", signerName),
			zap.String("documentTitle", documentTitle))
		return nil, newValidationError(cnst.ErrCodeMissingRequiredField,
			"document signature request missing session id, signer name or document title")
	}

	documentData := str(payload, "documentData", "document_data")
	if documentData == "" {
		n.logger.Error("document data missing in signature request", zap.String("sessionId", sessionID))
		return nil, newValidationError(cnst.ErrCodeDocumentMissing,
			"document data not provided in signature request")
	}

	documentSize := int64(intOr(payload, 0, "documentSize", "document_size"))
	if documentSize > cnst.MaxDocumentSize {
		n.logger.Error("document too large",
			zap.String("sessionId", sessionID),
			zap.Int64("documentSize", documentSize))
		return nil, newValidationError(cnst.ErrCodeDocumentTooLarge,
			"document size exceeds maximum limit")
	}

	if !strings.HasPrefix(documentData, cnst.PDFDataURIPrefix) {
		n.logger.Error("invalid document format, not a base64 PDF", zap.String("sessionId", sessionID))
		return nil, newValidationError(cnst.ErrCodeInvalidDocumentFormat,
			"document must be a base64 encoded PDF")
	}

	timeoutMinutes := intOr(payload, cnst.DefaultDocumentTimeoutMinutes, "timeoutMinutes", "timeout_minutes")

	req := &DocumentSignatureRequest{
		SessionID:       sessionID,
		DocumentID:      strOr(payload, "unknown", "documentId", "document_id"),
		CompanyID:       n.companyID(payload, deviceCompanyID, cnst.FallbackCompanyID),
		SignerName:      signerName,
		SignatureTitle:  strOr(payload, "Podpis protokołu", "signatureTitle", "signature_title"),
		DocumentTitle:   documentTitle,
		DocumentType:    strOr(payload, "PROTOCOL", "documentType", "document_type"),
		PageCount:       intOr(payload, 1, "pageCount", "page_count"),
		Instructions:    str(payload, "instructions"),
		BusinessContext: contextMap(payload),
		TimeoutMinutes:  timeoutMinutes,
		ExpiresAt:       n.expiry(payload, timeoutMinutes),
		SignatureFields: signatureFields(payload),
		Document: DocumentPayload{
			Data: documentData,
			Size: documentSize,
			Hash: str(payload, "documentHash", "document_hash"),
		},
	}
	return req, nil
}

// timestamp converts epoch seconds to ISO-8601, defaults a missing value to
// now, and passes strings through untouched.
func (n *Normalizer) timestamp(res gjson.Result) string {
	switch {
	case res.Type == gjson.Number:
		return time.Unix(res.Int(), 0).UTC().Format(isoMillis)
	case res.Type == gjson.String && res.String() != "":
		return res.String()
	default:
		return n.now().UTC().Format(isoMillis)
	}
}

// expiry returns the payload's expiresAt or derives one from the timeout.
func (n *Normalizer) expiry(payload []byte, timeoutMinutes int) string {
	if v := str(payload, "expiresAt", "expires_at"); v != "" {
		return v
	}
	return n.now().Add(time.Duration(timeoutMinutes) * time.Minute).UTC().Format(isoMillis)
}

// companyID resolves the payload value, then the device identity, then the
// hardcoded fallback, in that order.
func (n *Normalizer) companyID(payload []byte, deviceCompanyID, fallback int64) int64 {
	if res := gjson.GetBytes(payload, "companyId"); res.Exists() && res.Int() != 0 {
		return res.Int()
	}
	if res := gjson.GetBytes(payload, "company_id"); res.Exists() && res.Int() != 0 {
		return res.Int()
	}
	if deviceCompanyID != 0 {
		return deviceCompanyID
	}
	return fallback
}

// str returns the first non-empty string among the aliased keys.
func str(payload []byte, keys ...string) string {
	for _, key := range keys {
		if res := gjson.GetBytes(payload, key); res.Exists() && res.String() != "" {
			return res.String()
		}
	}
	return ""
}

// strOr is str with a default.
func strOr(payload []byte, def string, keys ...string) string {
	if v := str(payload, keys...); v != "" {
		return v
	}
	return def
}

// intOr returns the first present integer among the aliased keys.
func intOr(payload []byte, def int, keys ...string) int {
	for _, key := range keys {
		if res := gjson.GetBytes(payload, key); res.Exists() && res.Type == gjson.Number {
			return int(res.Int())
		}
	}
	return def
}

// firstOf returns the first non-empty string field of a nested result.
func firstOf(res gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := res.Get(key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// contextMap extracts the free-form business context object, if present.
func contextMap(payload []byte) map[string]any {
	res := gjson.GetBytes(payload, "businessContext")
	if !res.Exists() {
		res = gjson.GetBytes(payload, "business_context")
	}
	if !res.IsObject() {
		return nil
	}
	if m, ok := res.Value().(map[string]any); ok {
		return m
	}
	return nil
}

// signatureFields decodes the optional field placement list.
func signatureFields(payload []byte) []SignatureField {
	res := gjson.GetBytes(payload, "signatureFields")
	if !res.Exists() {
		res = gjson.GetBytes(payload, "signature_fields")
	}
	if !res.IsArray() {
		return nil
	}

	var fields []SignatureField
	for _, item := range res.Array() {
		fields = append(fields, SignatureField{
			FieldID:  firstOf(item, "fieldId", "field_id"),
			Page:     int(item.Get("page").Int()),
			X:        item.Get("x").Float(),
			Y:        item.Get("y").Float(),
			Width:    item.Get("width").Float(),
			Height:   item.Get("height").Float(),
			Required: item.Get("required").Bool(),
			Label:    item.Get("label").String(),
		})
	}
	return fields
}
