//go:build linux || darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/examples/lib/dev"
)

func openDevice(id int) (ble.Device, error) {
	return dev.NewDevice("default", ble.OptDeviceID(id))
}
