package session

// Status is the connection status of the session. Exactly one value is
// active at a time; transitions drive connection_status_changed events.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusAuthenticated Status = "authenticated"
	StatusError         Status = "error"
)

func (s Status) String() string {
	return string(s)
}
