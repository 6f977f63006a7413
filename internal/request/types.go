package request

// Variant discriminates the three signature request kinds.
type Variant string

const (
	VariantPlain    Variant = "plain"
	VariantSimple   Variant = "simple"
	VariantDocument Variant = "document"
)

func (v Variant) String() string {
	return string(v)
}

// VehicleInfo describes the vehicle a plain signature request concerns.
// Optional sub-fields are normalized to empty strings, never left unset.
type VehicleInfo struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	LicensePlate string `json:"licensePlate"`
	VIN          string `json:"vin,omitempty"`
}

// PlainSignatureRequest is the canonical form of a signature_request payload.
type PlainSignatureRequest struct {
	SessionID     string      `json:"sessionId"`
	WorkstationID string      `json:"workstationId"`
	CompanyID     int64       `json:"companyId"`
	CustomerName  string      `json:"customerName"`
	VehicleInfo   VehicleInfo `json:"vehicleInfo"`
	ServiceType   string      `json:"serviceType"`
	DocumentID    string      `json:"documentId"`
	DocumentType  string      `json:"documentType"`
	Timestamp     string      `json:"timestamp"`
}

// SignatureType categorizes a simple signature session.
type SignatureType string

const (
	SignatureTypeGeneral        SignatureType = "GENERAL"
	SignatureTypeAcknowledgment SignatureType = "ACKNOWLEDGMENT"
	SignatureTypeAgreement      SignatureType = "AGREEMENT"
	SignatureTypeReceipt        SignatureType = "RECEIPT"
	SignatureTypeAuthorization  SignatureType = "AUTHORIZATION"
	SignatureTypeWitness        SignatureType = "WITNESS"
	SignatureTypeCustom         SignatureType = "CUSTOM"
)

// SimpleSignatureRequest is the canonical form of a simple_signature_request
// payload.
type SimpleSignatureRequest struct {
	SessionID         string         `json:"sessionId"`
	CompanyID         int64          `json:"companyId"`
	SignerName        string         `json:"signerName"`
	SignatureTitle    string         `json:"signatureTitle"`
	Instructions      string         `json:"instructions,omitempty"`
	BusinessContext   map[string]any `json:"businessContext,omitempty"`
	TimeoutMinutes    int            `json:"timeoutMinutes"`
	ExpiresAt         string         `json:"expiresAt"`
	ExternalReference string         `json:"externalReference,omitempty"`
	SignatureType     SignatureType  `json:"signatureType"`
}

// SignatureField places one signature box on a document page.
type SignatureField struct {
	FieldID  string  `json:"fieldId"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Required bool    `json:"required"`
	Label    string  `json:"label,omitempty"`
}

// DocumentPayload is the PDF embedded in a document signature request.
type DocumentPayload struct {
	// Data is a base64 data URI with the application/pdf MIME prefix.
	Data string `json:"documentData"`
	Size int64  `json:"documentSize"`
	Hash string `json:"documentHash,omitempty"`
}

// DocumentSignatureRequest is the canonical form of a
// document_signature_request ("protocol") payload.
type DocumentSignatureRequest struct {
	SessionID       string           `json:"sessionId"`
	DocumentID      string           `json:"documentId"`
	CompanyID       int64            `json:"companyId"`
	SignerName      string           `json:"signerName"`
	SignatureTitle  string           `json:"signatureTitle"`
	DocumentTitle   string           `json:"documentTitle"`
	DocumentType    string           `json:"documentType"`
	PageCount       int              `json:"pageCount"`
	Instructions    string           `json:"instructions,omitempty"`
	BusinessContext map[string]any   `json:"businessContext,omitempty"`
	TimeoutMinutes  int              `json:"timeoutMinutes"`
	ExpiresAt       string           `json:"expiresAt"`
	SignatureFields []SignatureField `json:"signatureFields,omitempty"`
	Document        DocumentPayload  `json:"document"`
}
