package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"

	"bleremote/internal/domain"
)

// propertyFlags keeps the capability bits the panel cares about.
func propertyFlags(p ble.Property) domain.CharFlags {
	var f domain.CharFlags
	if p&ble.CharRead != 0 {
		f |= domain.CharRead
	}
	if p&ble.CharWriteNR != 0 {
		f |= domain.CharWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		f |= domain.CharWrite
	}
	if p&ble.CharNotify != 0 {
		f |= domain.CharNotify
	}
	if p&ble.CharIndicate != 0 {
		f |= domain.CharIndicate
	}
	return f
}

var poweredOffHints = []string{
	"powered off",
	"poweredoff",
	"turned on",
	"rfkill",
	"rf-kill",
	"is down",
	"not ready",
}

// classifyAdapterError maps stack errors to the adapter sentinels. Neither
// the HCI nor the CoreBluetooth backend exports typed errors, so this goes by
// message.
func classifyAdapterError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrAdapterPoweredOff) || errors.Is(err, domain.ErrInvalidAdapter) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range poweredOffHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %w", domain.ErrAdapterPoweredOff, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidAdapter, err)
}
