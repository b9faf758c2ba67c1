package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"

	"bleremote/internal/domain"
)

// Peripheral is a GATT client link. go-ble hands back pointers to its own
// service and characteristic records; they are kept by normalized UUID so
// writes can be resolved from the domain records the session holds.
type Peripheral struct {
	address string
	cln     ble.Client

	mu       sync.Mutex
	services map[string]*ble.Service
	chars    map[string]*ble.Characteristic
	once     sync.Once

	// writing is set while a WriteCharacteristic call is outstanding, even
	// one whose caller has given up on it.
	writing atomic.Bool
}

func newPeripheral(address string, cln ble.Client) *Peripheral {
	return &Peripheral{
		address:  address,
		cln:      cln,
		services: make(map[string]*ble.Service),
		chars:    make(map[string]*ble.Characteristic),
	}
}

func charKey(service, char string) string { return service + "/" + char }

func (p *Peripheral) Address() string { return p.address }

func (p *Peripheral) DiscoverServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	var svcs []*ble.Service
	err := await(ctx, func() (err error) {
		svcs, err = p.cln.DiscoverServices(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ServiceRecord, 0, len(svcs))
	for _, s := range svcs {
		uuid := domain.NormalizeUUID(s.UUID.String())
		p.services[uuid] = s
		out = append(out, domain.ServiceRecord{UUID: uuid, State: domain.ServiceDiscovered})
	}
	return out, nil
}

func (p *Peripheral) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]domain.CharacteristicRecord, error) {
	serviceUUID = domain.NormalizeUUID(serviceUUID)
	p.mu.Lock()
	svc, ok := p.services[serviceUUID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, serviceUUID)
	}

	var chars []*ble.Characteristic
	err := await(ctx, func() (err error) {
		chars, err = p.cln.DiscoverCharacteristics(nil, svc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics of %s: %w", serviceUUID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CharacteristicRecord, 0, len(chars))
	for _, c := range chars {
		uuid := domain.NormalizeUUID(c.UUID.String())
		p.chars[charKey(serviceUUID, uuid)] = c
		out = append(out, domain.CharacteristicRecord{
			UUID:        uuid,
			ServiceUUID: serviceUUID,
			Flags:       propertyFlags(c.Property),
		})
	}
	return out, nil
}

func (p *Peripheral) Write(ctx context.Context, char domain.CharacteristicRecord, data []byte, withResponse bool) error {
	p.mu.Lock()
	c, ok := p.chars[charKey(domain.NormalizeUUID(char.ServiceUUID), domain.NormalizeUUID(char.UUID))]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCharacteristicNotFound, char.UUID)
	}
	if !p.writing.CompareAndSwap(false, true) {
		return domain.NewDomainError("Peripheral.Write", domain.ErrLinkUnhealthy, "previous write still pending")
	}
	return await(ctx, func() error {
		defer p.writing.Store(false)
		return p.cln.WriteCharacteristic(c, data, !withResponse)
	})
}

func (p *Peripheral) Disconnect() error {
	var err error
	p.once.Do(func() { err = p.cln.CancelConnection() })
	return err
}

func (p *Peripheral) Disconnected() <-chan struct{} { return p.cln.Disconnected() }

// await runs a blocking go-ble call and returns early when ctx ends. The
// call itself cannot be interrupted; its result is dropped.
func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
