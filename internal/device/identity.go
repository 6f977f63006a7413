package device

// Identity is the paired device identity handed to the session at connect
// time. It is immutable for the lifetime of a connection; the session reads
// it, never mutates it.
type Identity struct {
	DeviceID      string `json:"deviceId"`
	DeviceToken   string `json:"deviceToken"`
	CompanyID     int64  `json:"companyId"`
	LocationID    string `json:"locationId"`
	WorkstationID string `json:"workstationId,omitempty"`
	FriendlyName  string `json:"friendlyName,omitempty"`

	Branding *Branding `json:"branding,omitempty"`
}

// Valid reports whether the identity carries the fields required to open and
// authenticate a connection.
func (i *Identity) Valid() bool {
	return i != nil && i.DeviceID != "" && i.DeviceToken != ""
}

// Branding is the company branding fetched after pairing. Stored alongside
// the credentials so the UI can render offline.
type Branding struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	LogoURL        string `json:"logoUrl"`
	CompanyName    string `json:"companyName"`
	WelcomeMessage string `json:"welcomeMessage,omitempty"`
}
