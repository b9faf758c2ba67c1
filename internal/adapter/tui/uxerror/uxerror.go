// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the panel.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Bluetooth Is Off"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for the error modal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	if fe.Raw != "" && fe.Raw != fe.Message {
		sb.WriteString("\n\n  ")
		sb.WriteString(theme.Dim.Render(fe.Raw))
	}
	return sb.String()
}

// Line is the one-line form used in the status line.
func (fe FriendlyError) Line() string {
	if fe.Message == "" {
		return fe.Title
	}
	return fe.Title + ": " + fe.Message
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

var patterns = []errorPattern{
	// Domain sentinels first so errors.Is works through wrapping. A dropped
	// link wraps ErrConnection, so it is matched before it.
	{
		match:   is(domain.ErrAdapterPoweredOff),
		produce: constantError("Bluetooth Is Off", "The Bluetooth adapter is powered off.", []string{"Turn Bluetooth on", "Check that the adapter is not blocked by rfkill"}),
	},
	{
		match:   is(domain.ErrInvalidAdapter),
		produce: constantError("No Usable Adapter", "The configured Bluetooth adapter could not be opened.", []string{"Check ble.adapter_id in config", "Run 'bleremote doctor'", "Use ble.backend: sim to try the panel without hardware"}),
	},
	{
		match:   is(domain.ErrDiscoveryAgent),
		produce: constantError("Scan Failed", "The device discovery agent reported an error.", []string{"Restart the Bluetooth service", "Scan again"}),
	},
	{
		match:   is(domain.ErrRemoteClosed),
		produce: constantError("Device Disconnected", "The peripheral closed the connection.", []string{"Check the device is powered and in range", "Connect again"}),
	},
	{
		match:   is(domain.ErrConnection),
		produce: constantError("Connection Failed", "The controller could not connect to the device.", []string{"Move closer to the device", "Check the device accepts connections", "Scan again and retry"}),
	},
	{
		match:   is(domain.ErrNoWritableCharacteristic),
		produce: constantError("Nothing To Write To", "No writable characteristic is selected.", []string{"Connect to a device first", "Pick a writable characteristic from the service list"}),
	},
	{
		match:   is(domain.ErrNotWritable),
		produce: constantError("Not Writable", "That characteristic does not accept writes.", []string{"Pick a characteristic marked (writable)"}),
	},
	{
		match:   is(domain.ErrNotConnected),
		produce: constantError("Not Connected", "There is no device connection.", []string{"Select a device and press Enter to connect"}),
	},
	{
		match:   is(domain.ErrScanInProgress),
		produce: constantError("Scan Running", "A scan is already in progress.", []string{"Wait for the current scan to finish"}),
	},
	{
		match:   is(domain.ErrLinkUnhealthy),
		produce: constantError("Writes Suspended", "Repeated write failures paused sending.", []string{"Wait a few seconds for writes to resume", "Reconnect to the device"}),
	},
	{
		match: is(domain.ErrInvalidInput),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Invalid Value",
				Message: "The value was not applied.",
				Hints:   []string{"Type a whole number inside the slider's range"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match:   is(domain.ErrSessionClosed),
		produce: constantError("Session Closed", "The control session has shut down.", []string{"Restart bleremote"}),
	},

	// Platform stack patterns (string matching for external errors).
	{
		match:   containsAny("operation not permitted", "permission denied"),
		produce: constantError("Permission Denied", "The process may not open the Bluetooth socket.", []string{"Run 'sudo setcap cap_net_raw,cap_net_admin+eip $(which bleremote)'", "Or run as root"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "timed out"),
		produce: constantError("Timed Out", "The Bluetooth operation took too long.", []string{"Move closer to the device", "Increase ble.connect_timeout in config"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Set logger.level: debug and check the log file"},
		Raw:     err.Error(),
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
