// Package goble is the hardware BLE central, built on github.com/go-ble/ble.
// On Linux it drives an HCI socket (it needs CAP_NET_ADMIN and CAP_NET_RAW);
// on macOS it goes through CoreBluetooth.
package goble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-ble/ble"

	"bleremote/internal/domain"
)

// Config selects the adapter.
type Config struct {
	AdapterID       int
	AllowDuplicates bool
}

// Central implements domain.Central on a go-ble device. The device is opened
// lazily on the first Ready, Scan or Dial so the binary starts even without an
// adapter attached.
type Central struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	device ble.Device
	open   func(id int) (ble.Device, error)
}

// New creates a central for the adapter in cfg.
func New(cfg Config, logger *slog.Logger) *Central {
	if logger == nil {
		logger = slog.Default()
	}
	return &Central{cfg: cfg, logger: logger, open: openDevice}
}

func (c *Central) Name() string { return "hci" }

func (c *Central) acquire() (ble.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return c.device, nil
	}
	d, err := c.open(c.cfg.AdapterID)
	if err != nil {
		return nil, classifyAdapterError(err)
	}
	c.logger.Info("bluetooth adapter opened", "adapter", c.cfg.AdapterID)
	c.device = d
	return d, nil
}

// Ready opens the adapter if needed.
func (c *Central) Ready(context.Context) error {
	_, err := c.acquire()
	return err
}

func (c *Central) Scan(ctx context.Context, handle func(domain.Advertisement)) error {
	d, err := c.acquire()
	if err != nil {
		return err
	}
	err = d.Scan(ctx, c.cfg.AllowDuplicates, func(a ble.Advertisement) {
		handle(toAdvertisement(a))
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return classifyAdapterError(err)
}

func (c *Central) Dial(ctx context.Context, address string) (domain.Peripheral, error) {
	d, err := c.acquire()
	if err != nil {
		return nil, err
	}
	cln, err := d.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrConnection, address, err)
	}
	return newPeripheral(address, cln), nil
}

// Close stops the adapter. A central that was never opened has nothing to do.
func (c *Central) Close() error {
	c.mu.Lock()
	d := c.device
	c.device = nil
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Stop()
}

func toAdvertisement(a ble.Advertisement) domain.Advertisement {
	var addr string
	if a.Addr() != nil {
		addr = a.Addr().String()
	}
	return domain.Advertisement{
		Name:        a.LocalName(),
		Address:     addr,
		RSSI:        a.RSSI(),
		Connectable: a.Connectable(),
		// go-ble only speaks LE; classic inquiry results never reach the handler.
		LowEnergy: true,
	}
}
