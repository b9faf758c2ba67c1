package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bleremote/internal/domain"
	"bleremote/internal/infra/tracer"
)

const defaultScanTimeout = 10 * time.Second

// Scan runs one bounded scan and returns the devices it found. The previous
// scan's list is discarded when the scan starts. Only LE-capable devices are
// kept; when a name filter is configured, only devices whose advertised name
// contains it.
func (s *Session) Scan(ctx context.Context) ([]domain.DiscoveredDevice, error) {
	var result chan scanOutcome
	var startErr error
	if err := s.call(ctx, func() { result, startErr = s.beginScan(ctx) }); err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}
	out := <-result
	return out.devices, out.err
}

type scanOutcome struct {
	devices []domain.DiscoveredDevice
	err     error
}

func (s *Session) beginScan(ctx context.Context) (chan scanOutcome, error) {
	if s.scanning {
		return nil, domain.NewDomainError("Session.Scan", domain.ErrScanInProgress, "")
	}
	s.scanning = true
	s.devices = nil
	s.deviceIdx = make(map[string]int)
	s.publish(domain.EventScanStarted, nil)

	timeout := s.ble.ScanTimeout
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	// The scan ends early if the session shuts down.
	scanCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	result := make(chan scanOutcome, 1)
	go func() {
		defer stop()
		defer cancel()
		s.scan(scanCtx, timeout, result)
	}()
	return result, nil
}

func (s *Session) scan(ctx context.Context, timeout time.Duration, result chan<- scanOutcome) {
	ctx, span := tracer.StartSpan(ctx, "session.scan")
	span.SetAttributes(tracer.StringAttr("ble.backend", s.central.Name()))

	err := s.central.Ready(ctx)
	if err == nil {
		scanCtx, cancel := context.WithTimeout(ctx, timeout)
		err = s.central.Scan(scanCtx, func(a domain.Advertisement) {
			if !s.keep(a) {
				return
			}
			seen := time.Now()
			s.post(func() { s.addDevice(a, seen) })
		})
		cancel()
		// The bound expiring is the normal end of a scan.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		err = classifyScanError(err)
	}
	tracer.Finish(span, err)

	s.post(func() { result <- s.finishScan(err) })
	// The loop may have exited before taking the finish closure.
	select {
	case <-s.stopped:
		select {
		case result <- scanOutcome{err: domain.ErrSessionClosed}:
		default:
		}
	default:
	}
}

func (s *Session) keep(a domain.Advertisement) bool {
	if !a.LowEnergy {
		return false
	}
	if f := s.ble.NameFilter; f != "" {
		return strings.Contains(strings.ToLower(a.Name), strings.ToLower(f))
	}
	return true
}

func (s *Session) addDevice(a domain.Advertisement, seen time.Time) {
	if !s.scanning {
		return
	}
	d := domain.DiscoveredDevice{
		Name:        a.Name,
		Address:     a.Address,
		RSSI:        a.RSSI,
		Connectable: a.Connectable,
		LowEnergy:   a.LowEnergy,
		SeenAt:      seen,
	}
	if i, ok := s.deviceIdx[a.Address]; ok {
		// Scan responses often carry the name the first report lacked.
		if d.Name == "" {
			d.Name = s.devices[i].Name
		}
		s.devices[i] = d
		return
	}
	s.deviceIdx[a.Address] = len(s.devices)
	s.devices = append(s.devices, d)
	s.publish(domain.EventDeviceFound, d)
}

func (s *Session) finishScan(err error) scanOutcome {
	s.scanning = false
	if err != nil {
		s.lastError = err.Error()
		s.logger.Warn("scan failed", "error", err)
		s.publish(domain.EventScanFailed, domain.ConnectionErrorPayload{
			Kind:    domain.ClassifyControllerError(err),
			Code:    domain.ErrorCodeOf(err),
			Message: err.Error(),
		})
		return scanOutcome{devices: append([]domain.DiscoveredDevice{}, s.devices...), err: err}
	}
	s.logger.Info("scan finished", "devices", len(s.devices))
	s.publish(domain.EventScanFinished, map[string]int{"devices": len(s.devices)})
	return scanOutcome{devices: append([]domain.DiscoveredDevice{}, s.devices...)}
}

// classifyScanError keeps taxonomy errors and files everything else under
// ErrDiscoveryAgent.
func classifyScanError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAdapterPoweredOff),
		errors.Is(err, domain.ErrInvalidAdapter),
		errors.Is(err, domain.ErrDiscoveryAgent),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrDiscoveryAgent, err)
	}
}

// Devices returns the devices found by the current or most recent scan.
func (s *Session) Devices(ctx context.Context) ([]domain.DiscoveredDevice, error) {
	var out []domain.DiscoveredDevice
	err := s.call(ctx, func() { out = append([]domain.DiscoveredDevice{}, s.devices...) })
	return out, err
}

// Device looks up a device from the current list by address.
func (s *Session) Device(ctx context.Context, address string) (domain.DiscoveredDevice, error) {
	var d domain.DiscoveredDevice
	var found bool
	err := s.call(ctx, func() {
		if i, ok := s.deviceIdx[address]; ok {
			d, found = s.devices[i], true
		}
	})
	if err != nil {
		return d, err
	}
	if !found {
		return d, domain.NewDomainError("Session.Device", domain.ErrDeviceNotFound, address)
	}
	return d, nil
}
