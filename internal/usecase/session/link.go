package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bleremote/internal/domain"
	"bleremote/internal/infra/tracer"
)

// Connect opens a link to the device at address and runs GATT discovery.
// An existing link is torn down first. Connect returns once every service
// has been explored, or with the first error that stopped the way there.
// A failed service discovery leaves the link up in Connected and is
// returned as well.
func (s *Session) Connect(ctx context.Context, address string) error {
	if address == "" {
		return domain.NewSubSystemError("session", "Session.Connect", domain.ErrInvalidInput, "address is required")
	}
	var ready chan error
	var old domain.Peripheral
	if err := s.call(ctx, func() { ready, old = s.beginConnect(ctx, address) }); err != nil {
		return err
	}
	if old != nil {
		go s.closePeripheral(old)
	}
	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		// Discovery carries on; the link stays up once ready.
		return ctx.Err()
	}
}

func (s *Session) beginConnect(ctx context.Context, address string) (chan error, domain.Peripheral) {
	var old domain.Peripheral
	if s.state != domain.StateDisconnected {
		s.logger.Info("replacing existing connection", "address", s.address)
		old = s.teardown(fmt.Errorf("%w: replaced by a new connection", domain.ErrConnection))
	}

	s.linkGen++
	gen := s.linkGen
	s.sessionID = s.newSessionID()
	s.address = address
	s.deviceName = ""
	if i, ok := s.deviceIdx[address]; ok {
		s.deviceName = s.devices[i].Name
	}
	s.lastError = ""
	s.tx.ResetLink()
	s.armed = false

	// The link outlives the caller's context only through linkCtx, which
	// teardown cancels.
	linkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.linkCancel = cancel
	s.waiter = make(chan error, 1)
	s.setState(domain.StateConnecting)

	go s.dial(ctx, linkCtx, address, gen)
	return s.waiter, old
}

func (s *Session) dial(callerCtx, linkCtx context.Context, address string, gen uint64) {
	dialCtx, cancel := context.WithCancel(linkCtx)
	defer cancel()
	// Cancelling the Connect call aborts the dial, not the link after it.
	stop := context.AfterFunc(callerCtx, cancel)
	defer stop()
	if t := s.ble.ConnectTimeout; t > 0 {
		var tcancel context.CancelFunc
		dialCtx, tcancel = context.WithTimeout(dialCtx, t)
		defer tcancel()
	}

	dialCtx, span := tracer.StartSpan(dialCtx, "session.connect")
	span.SetAttributes(tracer.AddressAttr(address))

	p, err := s.central.Dial(dialCtx, address)
	if err != nil && !errors.Is(err, domain.ErrConnection) &&
		!errors.Is(err, domain.ErrInvalidAdapter) && !errors.Is(err, domain.ErrAdapterPoweredOff) {
		err = fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	tracer.Finish(span, err)

	s.post(func() { s.onDialed(linkCtx, gen, p, err) })
}

func (s *Session) onDialed(linkCtx context.Context, gen uint64, p domain.Peripheral, err error) {
	if gen != s.linkGen {
		// Disconnected or replaced while dialing.
		if p != nil {
			go s.closePeripheral(p)
		}
		return
	}
	if err != nil {
		s.reportControllerError("connect failed", err)
		s.linkCancel()
		s.linkCancel = nil
		s.setState(domain.StateDisconnected)
		s.resolve(err)
		return
	}

	s.periph = p
	s.setState(domain.StateConnected)
	s.logger.Info("connected", "address", s.address, "session", s.sessionID)
	go s.watch(linkCtx, p, gen)

	s.setState(domain.StateDiscovering)
	go s.discover(linkCtx, p, gen)
}

// watch turns a peripheral-initiated drop into a loop event.
func (s *Session) watch(linkCtx context.Context, p domain.Peripheral, gen uint64) {
	select {
	case <-p.Disconnected():
		s.post(func() { s.onLinkDropped(gen) })
	case <-linkCtx.Done():
	}
}

func (s *Session) onLinkDropped(gen uint64) {
	if gen != s.linkGen || s.state == domain.StateDisconnected {
		return
	}
	err := fmt.Errorf("%w: %w", domain.ErrConnection, domain.ErrRemoteClosed)
	s.reportControllerError("link dropped", err)
	if p := s.teardown(err); p != nil {
		go s.closePeripheral(p)
	}
}

// discover lists the services and then explores each one concurrently.
// Results are applied on the loop in the order they complete.
func (s *Session) discover(ctx context.Context, p domain.Peripheral, gen uint64) {
	ctx, span := tracer.StartSpan(ctx, "session.discover")
	span.SetAttributes(tracer.AddressAttr(p.Address()))

	services, err := p.DiscoverServices(ctx)
	s.post(func() { s.onServices(gen, services, err) })
	if err != nil {
		tracer.Finish(span, err)
		return
	}
	span.SetAttributes(tracer.IntAttr("ble.services", len(services)))

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(uuid string) {
			defer wg.Done()
			chars, err := p.DiscoverCharacteristics(ctx, uuid)
			s.post(func() { s.onCharacteristics(gen, uuid, chars, err) })
		}(svc.UUID)
	}
	wg.Wait()
	tracer.Finish(span, nil)
}

func (s *Session) onServices(gen uint64, services []domain.ServiceRecord, err error) {
	if gen != s.linkGen {
		return
	}
	if err != nil {
		err = fmt.Errorf("discover services: %w", err)
		s.reportControllerError("service discovery failed", err)
		s.setState(domain.StateConnected)
		s.resolve(err)
		return
	}

	for _, svc := range services {
		rec := &domain.ServiceRecord{UUID: svc.UUID, State: domain.ServiceDiscovered}
		s.services = append(s.services, rec)
		s.serviceIdx[domain.NormalizeUUID(svc.UUID)] = rec
		s.publish(domain.EventServiceDiscovered, domain.ServiceStatePayload{UUID: rec.UUID, State: rec.State})
	}
	for _, rec := range s.services {
		rec.State = domain.ServiceDiscoveringDetails
		s.publish(domain.EventServiceState, domain.ServiceStatePayload{UUID: rec.UUID, State: rec.State})
	}
	s.inDetails = len(s.services)
	if s.inDetails == 0 {
		s.discoveryDone()
	}
}

func (s *Session) onCharacteristics(gen uint64, uuid string, chars []domain.CharacteristicRecord, err error) {
	if gen != s.linkGen {
		return
	}
	rec, ok := s.serviceIdx[domain.NormalizeUUID(uuid)]
	if !ok {
		return
	}
	s.inDetails--

	if err != nil {
		// Stays in DiscoveringDetails; nothing is surfaced.
		s.logger.Debug("characteristic discovery failed", "service", uuid, "error", err)
	} else {
		rec.Characteristics = chars
		rec.State = domain.ServiceFullyDiscovered
		s.publish(domain.EventServiceState, domain.ServiceStatePayload{UUID: rec.UUID, State: rec.State})
		if c, ok := rec.FirstWritable(); ok {
			s.setTarget(c)
		}
	}

	if s.inDetails == 0 {
		s.discoveryDone()
	}
}

func (s *Session) discoveryDone() {
	s.setState(domain.StateConnected)
	if s.target == nil {
		s.logger.Warn("no writable characteristic found", "address", s.address, "services", len(s.services))
	}
	s.resolve(nil)
}

// teardown drops the link and every piece of state that hangs off it. The
// peripheral is returned so the caller can close it off the loop.
func (s *Session) teardown(cause error) domain.Peripheral {
	if s.state == domain.StateDisconnected {
		return nil
	}
	s.linkGen++
	if s.linkCancel != nil {
		s.linkCancel()
		s.linkCancel = nil
	}
	s.tx.Cancel()
	s.armed = false

	p := s.periph
	s.periph = nil
	s.services = nil
	s.serviceIdx = make(map[string]*domain.ServiceRecord)
	s.inDetails = 0
	s.clearTarget()
	s.setState(domain.StateDisconnected)
	s.resolve(cause)
	s.logger.Info("disconnected", "address", s.address, "session", s.sessionID)
	return p
}

// resolve answers a Connect call still waiting for the link to become ready.
func (s *Session) resolve(err error) {
	if s.waiter == nil {
		return
	}
	s.waiter <- err
	s.waiter = nil
}

func (s *Session) closePeripheral(p domain.Peripheral) {
	if err := p.Disconnect(); err != nil {
		s.logger.Debug("peripheral disconnect", "address", p.Address(), "error", err)
	}
}

func (s *Session) reportControllerError(msg string, err error) {
	kind := domain.ClassifyControllerError(err)
	s.lastError = err.Error()
	s.logger.Error(msg, "address", s.address, "kind", string(kind), "error", err)
	s.publish(domain.EventConnectionError, domain.ConnectionErrorPayload{
		Kind:    kind,
		Code:    domain.ErrorCodeOf(err),
		Message: err.Error(),
	})
}

// Disconnect tears down the link and clears services, characteristics, the
// write target and any pending debounced write. Disconnecting while already
// disconnected is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	var p domain.Peripheral
	err := s.call(ctx, func() {
		p = s.teardown(fmt.Errorf("%w: disconnected before ready", domain.ErrConnection))
	})
	if err != nil {
		return err
	}
	if p != nil {
		if err := p.Disconnect(); err != nil {
			return fmt.Errorf("disconnect %s: %w", p.Address(), err)
		}
	}
	return nil
}
