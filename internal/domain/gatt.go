package domain

import "strings"

// CharFlags is the capability bit set of a GATT characteristic.
// Bit values match the ATT characteristic properties field.
type CharFlags uint8

const (
	CharRead                 CharFlags = 0x02
	CharWriteWithoutResponse CharFlags = 0x04
	CharWrite                CharFlags = 0x08
	CharNotify               CharFlags = 0x10
	CharIndicate             CharFlags = 0x20
)

// Readable reports the read bit.
func (f CharFlags) Readable() bool { return f&CharRead != 0 }

// Writable reports whether either write mode is supported.
func (f CharFlags) Writable() bool { return f&(CharWrite|CharWriteWithoutResponse) != 0 }

// Notifiable reports whether notify or indicate is supported.
func (f CharFlags) Notifiable() bool { return f&(CharNotify|CharIndicate) != 0 }

// Labels returns the capability labels shown next to a characteristic.
func (f CharFlags) Labels() []string {
	var labels []string
	if f.Writable() {
		labels = append(labels, "writable")
	}
	if f.Readable() {
		labels = append(labels, "readable")
	}
	if f.Notifiable() {
		labels = append(labels, "notify")
	}
	return labels
}

// ServiceState is the per-service discovery state.
type ServiceState string

const (
	ServiceDiscovered         ServiceState = "discovered"
	ServiceDiscoveringDetails ServiceState = "discovering_details"
	ServiceFullyDiscovered    ServiceState = "fully_discovered"
)

// CharacteristicRecord is one characteristic of a discovered service.
type CharacteristicRecord struct {
	UUID        string    `json:"uuid"`
	ServiceUUID string    `json:"service_uuid"`
	Flags       CharFlags `json:"flags"`
}

// Label renders the UUID followed by its capability labels, e.g.
// "6e400002... (writable) (notify)".
func (c CharacteristicRecord) Label() string {
	var sb strings.Builder
	sb.WriteString(c.UUID)
	for _, l := range c.Flags.Labels() {
		sb.WriteString(" (")
		sb.WriteString(l)
		sb.WriteString(")")
	}
	return sb.String()
}

// ServiceRecord is a discovered GATT service and the characteristics found
// for it once it reaches ServiceFullyDiscovered.
type ServiceRecord struct {
	UUID            string                 `json:"uuid"`
	State           ServiceState           `json:"state"`
	Characteristics []CharacteristicRecord `json:"characteristics,omitempty"`
}

// FirstWritable returns the first writable characteristic of the service.
func (s ServiceRecord) FirstWritable() (CharacteristicRecord, bool) {
	for _, c := range s.Characteristics {
		if c.Flags.Writable() {
			return c, true
		}
	}
	return CharacteristicRecord{}, false
}

// NormalizeUUID lowercases a UUID and strips dashes and braces, so that
// "6E400001-B5A3-F393-E0A9-E50E24DCCA9E" and "6e400001b5a3f393e0a9e50e24dcca9e"
// compare equal.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "{", "", "}", "").Replace(s)
}
