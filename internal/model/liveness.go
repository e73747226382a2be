package model

import "time"

// LivenessChange is emitted when a device's derived online flag flips.
type LivenessChange struct {
	Device   string    `json:"device"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
	At       time.Time `json:"at"`
}

// DeviceLiveness is one row of a liveness snapshot.
type DeviceLiveness struct {
	Device   string    `json:"device"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// ConnectionStatus of the broker session.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}
