package domain

import (
	"fmt"
	"time"
)

// ConnectionState is the lifecycle state of the single controller a session owns.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDiscovering  ConnectionState = "discovering"
)

// connectionTransitions is the full set of legal edges. Anything not listed
// is rejected by Transition.
var connectionTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateDiscovering, StateDisconnected},
	StateDiscovering:  {StateConnected, StateDisconnected},
}

// CanTransition reports whether moving from s to next is legal.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	for _, allowed := range connectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the edge is legal, or ErrInvalidTransition.
func (s ConnectionState) Transition(next ConnectionState) (ConnectionState, error) {
	if !s.CanTransition(next) {
		return s, NewDomainError("ConnectionState.Transition", ErrInvalidTransition, fmt.Sprintf("%s -> %s", s, next))
	}
	return next, nil
}

// IsLinked reports whether a peripheral link exists in this state.
func (s ConnectionState) IsLinked() bool {
	return s == StateConnected || s == StateDiscovering
}

func (s ConnectionState) String() string { return string(s) }

// DiscoveredDevice is a peripheral seen during the current scan.
type DiscoveredDevice struct {
	Name        string    `json:"name,omitempty"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	LowEnergy   bool      `json:"low_energy"`
	SeenAt      time.Time `json:"seen_at"`
}

// DisplayName returns the advertised name, or the address when the device
// did not advertise one.
func (d DiscoveredDevice) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}
