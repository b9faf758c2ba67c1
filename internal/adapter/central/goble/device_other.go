//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"

	"bleremote/internal/domain"
)

func openDevice(int) (ble.Device, error) {
	return nil, fmt.Errorf("%w: no bluetooth stack for %s", domain.ErrInvalidAdapter, runtime.GOOS)
}
