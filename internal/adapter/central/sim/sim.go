// Package sim is an in-memory BLE central. It backs the "sim" backend, so the
// panel and gateway can be driven without a radio, and doubles as the test
// peripheral for the session.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bleremote/internal/domain"
)

// Service is a simulated GATT service.
type Service struct {
	UUID            string
	Characteristics []domain.CharacteristicRecord
	// DetailDelay is how long characteristic discovery takes.
	DetailDelay time.Duration
	// DetailErr makes characteristic discovery fail.
	DetailErr error
}

// Device is a simulated peripheral.
type Device struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
	LowEnergy   bool
	Services    []Service
}

// Write is one write received by a simulated peripheral.
type Write struct {
	Characteristic string
	Data           []byte
	WithResponse   bool
	At             time.Time
}

// Central is a simulated central role.
type Central struct {
	mu          sync.Mutex
	devices     []*Device
	byAddr      map[string]*Device
	links       map[string]*Peripheral
	writes      map[string][]Write
	poweredOff  bool
	dialErr     error
	dialDelay   time.Duration
	servicesErr error
	writeErr    error
	advInterval time.Duration
}

// New creates an empty simulated central.
func New() *Central {
	return &Central{
		byAddr:      make(map[string]*Device),
		links:       make(map[string]*Peripheral),
		writes:      make(map[string][]Write),
		advInterval: 20 * time.Millisecond,
	}
}

// NewDemo returns a central with one ESP32-style rover exposing a Nordic UART
// service, and a heart-rate strap with nothing writable.
func NewDemo() *Central {
	c := New()
	c.AddDevice(Device{
		Address:     "24:0A:C4:12:34:56",
		Name:        "ESP32-Rover",
		RSSI:        -52,
		Connectable: true,
		LowEnergy:   true,
		Services: []Service{
			{
				UUID: "180a",
				Characteristics: []domain.CharacteristicRecord{
					{UUID: "2a29", ServiceUUID: "180a", Flags: domain.CharRead},
				},
				DetailDelay: 30 * time.Millisecond,
			},
			{
				UUID: "6e400001b5a3f393e0a9e50e24dcca9e",
				Characteristics: []domain.CharacteristicRecord{
					{UUID: "6e400002b5a3f393e0a9e50e24dcca9e", ServiceUUID: "6e400001b5a3f393e0a9e50e24dcca9e", Flags: domain.CharWrite | domain.CharWriteWithoutResponse},
					{UUID: "6e400003b5a3f393e0a9e50e24dcca9e", ServiceUUID: "6e400001b5a3f393e0a9e50e24dcca9e", Flags: domain.CharNotify},
				},
				DetailDelay: 60 * time.Millisecond,
			},
		},
	})
	c.AddDevice(Device{
		Address:     "C8:FD:19:AA:BB:CC",
		Name:        "HRM-Strap",
		RSSI:        -77,
		Connectable: true,
		LowEnergy:   true,
		Services: []Service{{
			UUID: "180d",
			Characteristics: []domain.CharacteristicRecord{
				{UUID: "2a37", ServiceUUID: "180d", Flags: domain.CharNotify},
				{UUID: "2a38", ServiceUUID: "180d", Flags: domain.CharRead},
			},
		}},
	})
	return c
}

// AddDevice makes a device discoverable and dialable.
func (c *Central) AddDevice(d Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev := d
	c.devices = append(c.devices, &dev)
	c.byAddr[d.Address] = &dev
}

// SetPoweredOff simulates the adapter being switched off.
func (c *Central) SetPoweredOff(off bool) {
	c.mu.Lock()
	c.poweredOff = off
	c.mu.Unlock()
}

// SetDialError makes every Dial fail with err.
func (c *Central) SetDialError(err error) {
	c.mu.Lock()
	c.dialErr = err
	c.mu.Unlock()
}

// SetDialDelay delays every Dial.
func (c *Central) SetDialDelay(d time.Duration) {
	c.mu.Lock()
	c.dialDelay = d
	c.mu.Unlock()
}

// SetServicesError makes service discovery fail with err.
func (c *Central) SetServicesError(err error) {
	c.mu.Lock()
	c.servicesErr = err
	c.mu.Unlock()
}

// SetWriteError makes every write fail with err.
func (c *Central) SetWriteError(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// SetAdvertisingInterval sets the spacing between scan reports.
func (c *Central) SetAdvertisingInterval(d time.Duration) {
	c.mu.Lock()
	c.advInterval = d
	c.mu.Unlock()
}

// Writes returns the writes a device has received.
func (c *Central) Writes(address string) []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes[address]...)
}

// Connected reports whether a link to address is open.
func (c *Central) Connected(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.links[address]
	return ok
}

// Drop simulates the peripheral closing the link.
func (c *Central) Drop(address string) {
	c.mu.Lock()
	p := c.links[address]
	delete(c.links, address)
	c.mu.Unlock()
	if p != nil {
		p.close()
	}
}

// Name implements domain.Central.
func (c *Central) Name() string { return "sim" }

// Ready implements domain.Central.
func (c *Central) Ready(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poweredOff {
		return domain.ErrAdapterPoweredOff
	}
	return nil
}

// Scan implements domain.Central. Every device is reported once, then the
// scan idles until ctx is done.
func (c *Central) Scan(ctx context.Context, handle func(domain.Advertisement)) error {
	c.mu.Lock()
	if c.poweredOff {
		c.mu.Unlock()
		return domain.ErrAdapterPoweredOff
	}
	devices := append([]*Device(nil), c.devices...)
	interval := c.advInterval
	c.mu.Unlock()

	for _, d := range devices {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		handle(domain.Advertisement{
			Name:        d.Name,
			Address:     d.Address,
			RSSI:        d.RSSI,
			Connectable: d.Connectable,
			LowEnergy:   d.LowEnergy,
		})
	}
	<-ctx.Done()
	return nil
}

// Dial implements domain.Central.
func (c *Central) Dial(ctx context.Context, address string) (domain.Peripheral, error) {
	c.mu.Lock()
	delay, dialErr := c.dialDelay, c.dialErr
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poweredOff {
		return nil, domain.ErrAdapterPoweredOff
	}
	d, ok := c.byAddr[address]
	if !ok {
		return nil, fmt.Errorf("%w: no device at %s", domain.ErrConnection, address)
	}
	if !d.Connectable {
		return nil, fmt.Errorf("%w: %s is not connectable", domain.ErrConnection, address)
	}
	if _, busy := c.links[address]; busy {
		return nil, fmt.Errorf("%w: %s already connected", domain.ErrConnection, address)
	}
	p := &Peripheral{central: c, device: d, done: make(chan struct{})}
	c.links[address] = p
	return p, nil
}

// Close implements domain.Central.
func (c *Central) Close() error {
	c.mu.Lock()
	links := c.links
	c.links = make(map[string]*Peripheral)
	c.mu.Unlock()
	for _, p := range links {
		p.close()
	}
	return nil
}

// Peripheral is a link to a simulated device.
type Peripheral struct {
	central *Central
	device  *Device
	once    sync.Once
	done    chan struct{}
}

func (p *Peripheral) close() { p.once.Do(func() { close(p.done) }) }

func (p *Peripheral) alive() error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: link to %s is closed", domain.ErrConnection, p.device.Address)
	default:
		return nil
	}
}

// Address implements domain.Peripheral.
func (p *Peripheral) Address() string { return p.device.Address }

// DiscoverServices implements domain.Peripheral.
func (p *Peripheral) DiscoverServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	p.central.mu.Lock()
	err := p.central.servicesErr
	p.central.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServiceRecord, 0, len(p.device.Services))
	for _, s := range p.device.Services {
		out = append(out, domain.ServiceRecord{UUID: s.UUID, State: domain.ServiceDiscovered})
	}
	return out, nil
}

// DiscoverCharacteristics implements domain.Peripheral.
func (p *Peripheral) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]domain.CharacteristicRecord, error) {
	for _, s := range p.device.Services {
		if domain.NormalizeUUID(s.UUID) != domain.NormalizeUUID(serviceUUID) {
			continue
		}
		if s.DetailDelay > 0 {
			select {
			case <-time.After(s.DetailDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.done:
			}
		}
		if err := p.alive(); err != nil {
			return nil, err
		}
		if s.DetailErr != nil {
			return nil, s.DetailErr
		}
		return append([]domain.CharacteristicRecord(nil), s.Characteristics...), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, serviceUUID)
}

// Write implements domain.Peripheral.
func (p *Peripheral) Write(ctx context.Context, char domain.CharacteristicRecord, data []byte, withResponse bool) error {
	if err := p.alive(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c := p.central
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes[p.device.Address] = append(c.writes[p.device.Address], Write{
		Characteristic: char.UUID,
		Data:           append([]byte(nil), data...),
		WithResponse:   withResponse,
		At:             time.Now(),
	})
	return nil
}

// Disconnect implements domain.Peripheral.
func (p *Peripheral) Disconnect() error {
	c := p.central
	c.mu.Lock()
	if c.links[p.device.Address] == p {
		delete(c.links, p.device.Address)
	}
	c.mu.Unlock()
	p.close()
	return nil
}

// Disconnected implements domain.Peripheral.
func (p *Peripheral) Disconnected() <-chan struct{} { return p.done }
