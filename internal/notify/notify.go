// Package notify declares the presentation-side collaborators the session
// core talks to: the local attention affordance (vibration plus audio cue)
// and the tablet telemetry provider. Real implementations live in the UI
// shell; the core only ever calls them best-effort.
package notify

import "go.uber.org/zap"

// Notifier signals the person holding the tablet that a request arrived.
// Implementations must return quickly and never fail the caller.
type Notifier interface {
	RequestReceived()
}

// Nop is a Notifier that does nothing.
type Nop struct{}

var _ Notifier = (*Nop)(nil)

func (Nop) RequestReceived() {}

// Log is a Notifier that records the cue in the log, used headless.
type Log struct {
	Logger *zap.Logger
}

var _ Notifier = (*Log)(nil)

func (l Log) RequestReceived() {
	l.Logger.Info("signature request notification cue")
}

// StatusProvider supplies the telemetry reported in tablet_status frames.
type StatusProvider interface {
	// BatteryLevel returns the battery percentage and whether it is known.
	BatteryLevel() (int, bool)

	// Orientation returns "landscape" or "portrait".
	Orientation() string

	// Active reports whether the tablet surface is in active use.
	Active() bool
}

// StaticStatus is a StatusProvider with fixed values, used when the host
// platform exposes no sensors.
type StaticStatus struct {
	Battery    int
	HasBattery bool
	Orient     string
	IsActive   bool
}

var _ StatusProvider = (*StaticStatus)(nil)

func (s StaticStatus) BatteryLevel() (int, bool) { return s.Battery, s.HasBattery }

func (s StaticStatus) Orientation() string {
	if s.Orient == "" {
		return "landscape"
	}
	return s.Orient
}

func (s StaticStatus) Active() bool { return s.IsActive }
