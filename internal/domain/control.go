package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis names one of the two control values.
type Axis string

const (
	// AxisForward is the first payload byte ("id" in the byte profile).
	AxisForward Axis = "forward"
	// AxisTurn is the second payload byte ("value" in the byte profile).
	AxisTurn Axis = "turn"
)

// ParseAxis accepts the axis names and their byte-profile aliases.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "id":
		return AxisForward, nil
	case "turn", "value":
		return AxisTurn, nil
	}
	return "", NewSubSystemError("control", "ParseAxis", ErrInvalidInput, fmt.Sprintf("unknown axis %q", s))
}

// Range is an inclusive integer interval with a resting value.
type Range struct {
	Min     int `yaml:"min" json:"min"`
	Max     int `yaml:"max" json:"max"`
	Default int `yaml:"default" json:"default"`
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int) bool { return v >= r.Min && v <= r.Max }

// Valid reports whether the range is well-formed.
func (r Range) Valid() bool { return r.Min <= r.Max && r.Contains(r.Default) }

// Profile pairs the ranges of both axes.
type Profile struct {
	Name    string `json:"name"`
	Forward Range  `json:"forward"`
	Turn    Range  `json:"turn"`
}

// Built-in profiles.
var (
	// ProfileByte drives both bytes over their full unsigned span.
	ProfileByte = Profile{
		Name:    "byte",
		Forward: Range{Min: 0, Max: 255, Default: 127},
		Turn:    Range{Min: 0, Max: 255, Default: 127},
	}
	// ProfileDrive is a signed forward/steer pair centred on zero.
	ProfileDrive = Profile{
		Name:    "drive",
		Forward: Range{Min: -100, Max: 100, Default: 0},
		Turn:    Range{Min: -90, Max: 90, Default: 0},
	}
)

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, bool) {
	switch strings.ToLower(name) {
	case "byte":
		return ProfileByte, true
	case "drive":
		return ProfileDrive, true
	}
	return Profile{}, false
}

// RangeOf returns the range governing the axis.
func (p Profile) RangeOf(a Axis) Range {
	if a == AxisTurn {
		return p.Turn
	}
	return p.Forward
}

// Controls holds the two current values.
type Controls struct {
	Forward int `json:"forward"`
	Turn    int `json:"turn"`
}

// DefaultControls returns the resting values of the profile.
func (p Profile) DefaultControls() Controls {
	return Controls{Forward: p.Forward.Default, Turn: p.Turn.Default}
}

// Get returns the value of one axis.
func (c Controls) Get(a Axis) int {
	if a == AxisTurn {
		return c.Turn
	}
	return c.Forward
}

// With returns a copy with one axis replaced.
func (c Controls) With(a Axis, v int) Controls {
	if a == AxisTurn {
		c.Turn = v
	} else {
		c.Forward = v
	}
	return c
}

// Payload encodes the controls as the two-byte wire frame. Each value is
// narrowed to its low 8 bits, so -1 becomes 0xFF.
func (c Controls) Payload() []byte {
	return []byte{byte(c.Forward), byte(c.Turn)}
}

// ParseControlText parses user-typed text for an axis. Non-numeric and
// out-of-range input is rejected; the caller keeps the previous value.
func ParseControlText(r Range, text string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, NewSubSystemError("control", "ParseControlText", ErrInvalidInput, fmt.Sprintf("%q is not a number", text))
	}
	if !r.Contains(v) {
		return 0, NewSubSystemError("control", "ParseControlText", ErrInvalidInput,
			fmt.Sprintf("%d outside %d..%d", v, r.Min, r.Max))
	}
	return v, nil
}
