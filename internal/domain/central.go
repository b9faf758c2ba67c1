package domain

import "context"

// Advertisement is one scan report from the radio.
type Advertisement struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
	LowEnergy   bool
}

// Central is the BLE central role supplied by the platform stack.
type Central interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Ready reports whether the adapter is present and powered. Scans and
	// dials fail with ErrAdapterPoweredOff or ErrInvalidAdapter otherwise.
	Ready(ctx context.Context) error
	// Scan reports advertisements to handle until ctx is done. It returns
	// nil when the scan ended because ctx expired.
	Scan(ctx context.Context, handle func(Advertisement)) error
	// Dial opens a GATT client link to the peripheral at address.
	Dial(ctx context.Context, address string) (Peripheral, error)
	// Close releases the adapter.
	Close() error
}

// Peripheral is an open GATT client link.
type Peripheral interface {
	Address() string
	// DiscoverServices lists the primary services of the peripheral.
	DiscoverServices(ctx context.Context) ([]ServiceRecord, error)
	// DiscoverCharacteristics fills in the characteristics of one service.
	DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]CharacteristicRecord, error)
	// Write sends data to a characteristic. withResponse selects an
	// acknowledged write; otherwise the write is fire-and-forget.
	Write(ctx context.Context, char CharacteristicRecord, data []byte, withResponse bool) error
	// Disconnect tears down the link. Safe to call more than once.
	Disconnect() error
	// Disconnected is closed when the link drops for any reason.
	Disconnected() <-chan struct{}
}
