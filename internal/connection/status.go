// SPDX-License-Identifier: MPL-2.0

package connection

const (
	// StatusStopped means the port is not listening.
	StatusStopped Status = iota
	// StatusWaiting means the port is listening and no client is connected.
	StatusWaiting
	// StatusConnected means a client is connected.
	StatusConnected
)

// Status is the externally visible state of a Connection.
type Status int

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusWaiting:
		return "Waiting"
	case StatusConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}
