package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bleremote/internal/domain"
	"bleremote/internal/infra/tracer"
	"bleremote/internal/usecase/transmit"
)

// Services returns the discovered services of the current link.
func (s *Session) Services(ctx context.Context) ([]domain.ServiceRecord, error) {
	var out []domain.ServiceRecord
	err := s.call(ctx, func() { out = s.copyServices() })
	return out, err
}

func (s *Session) copyServices() []domain.ServiceRecord {
	out := make([]domain.ServiceRecord, 0, len(s.services))
	for _, rec := range s.services {
		cp := *rec
		cp.Characteristics = append([]domain.CharacteristicRecord(nil), rec.Characteristics...)
		out = append(out, cp)
	}
	return out
}

// Characteristics lists the characteristics of one service.
func (s *Session) Characteristics(ctx context.Context, serviceUUID string) ([]domain.CharacteristicRecord, error) {
	var out []domain.CharacteristicRecord
	var opErr error
	err := s.call(ctx, func() {
		if !s.state.IsLinked() {
			opErr = domain.NewDomainError("Session.Characteristics", domain.ErrNotConnected, "")
			return
		}
		rec, ok := s.serviceIdx[domain.NormalizeUUID(serviceUUID)]
		if !ok {
			opErr = domain.NewDomainError("Session.Characteristics", domain.ErrServiceNotFound, serviceUUID)
			return
		}
		out = append([]domain.CharacteristicRecord(nil), rec.Characteristics...)
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// WriteTarget returns the active write target, or nil when there is none.
func (s *Session) WriteTarget(ctx context.Context) (*domain.CharacteristicRecord, error) {
	var out *domain.CharacteristicRecord
	err := s.call(ctx, func() {
		if s.target != nil {
			t := *s.target
			out = &t
		}
	})
	return out, err
}

// SelectCharacteristic makes a discovered writable characteristic the write
// target. Selecting the current target again changes nothing.
func (s *Session) SelectCharacteristic(ctx context.Context, uuid string) (domain.CharacteristicRecord, error) {
	var out domain.CharacteristicRecord
	var opErr error
	err := s.call(ctx, func() { out, opErr = s.selectCharacteristic(uuid) })
	if err != nil {
		return out, err
	}
	return out, opErr
}

func (s *Session) selectCharacteristic(uuid string) (domain.CharacteristicRecord, error) {
	const op = "Session.SelectCharacteristic"
	if !s.state.IsLinked() {
		return domain.CharacteristicRecord{}, domain.NewDomainError(op, domain.ErrNotConnected, "")
	}
	want := domain.NormalizeUUID(uuid)
	if s.target != nil && domain.NormalizeUUID(s.target.UUID) == want {
		return *s.target, nil
	}
	for _, rec := range s.services {
		for _, c := range rec.Characteristics {
			if domain.NormalizeUUID(c.UUID) != want {
				continue
			}
			if !c.Flags.Writable() {
				return c, domain.NewDomainError(op, domain.ErrNotWritable, c.Label())
			}
			s.setTarget(c)
			return c, nil
		}
	}
	return domain.CharacteristicRecord{}, domain.NewDomainError(op, domain.ErrCharacteristicNotFound, uuid)
}

func (s *Session) setTarget(c domain.CharacteristicRecord) {
	if s.target != nil && domain.NormalizeUUID(s.target.UUID) == domain.NormalizeUUID(c.UUID) &&
		domain.NormalizeUUID(s.target.ServiceUUID) == domain.NormalizeUUID(c.ServiceUUID) {
		return
	}
	s.target = &c
	s.logger.Info("write target selected", "characteristic", c.UUID, "service", c.ServiceUUID)
	s.publish(domain.EventTargetSelected, c)
}

func (s *Session) clearTarget() {
	if s.target == nil {
		return
	}
	s.target = nil
	s.publish(domain.EventTargetCleared, nil)
}

// Controls returns the current control values.
func (s *Session) Controls(ctx context.Context) (domain.Controls, error) {
	var c domain.Controls
	err := s.call(ctx, func() { c = s.controls })
	return c, err
}

// SetControl sets one axis, clamped to its range, and schedules a write
// according to the send mode. The stored value is returned.
func (s *Session) SetControl(ctx context.Context, axis domain.Axis, value int) (domain.Controls, error) {
	var out domain.Controls
	err := s.call(ctx, func() {
		s.applyControls(s.controls.With(axis, s.profile.RangeOf(axis).Clamp(value)), false)
		out = s.controls
	})
	return out, err
}

// SetControlText parses typed text for one axis. Text that is not a number
// or lies outside the axis range leaves the value unchanged and returns an
// ErrInvalidInput error.
func (s *Session) SetControlText(ctx context.Context, axis domain.Axis, text string) (domain.Controls, error) {
	var out domain.Controls
	var opErr error
	err := s.call(ctx, func() {
		v, perr := domain.ParseControlText(s.profile.RangeOf(axis), text)
		if perr != nil {
			opErr = perr
			out = s.controls
			return
		}
		s.applyControls(s.controls.With(axis, v), false)
		out = s.controls
	})
	if err != nil {
		return out, err
	}
	return out, opErr
}

// Center returns one axis to its resting value.
func (s *Session) Center(ctx context.Context, axis domain.Axis) (domain.Controls, error) {
	var out domain.Controls
	err := s.call(ctx, func() {
		s.applyControls(s.controls.With(axis, s.profile.RangeOf(axis).Default), true)
		out = s.controls
	})
	return out, err
}

// Stop returns both axes to their resting values. The resting values are
// sent even when nothing changed.
func (s *Session) Stop(ctx context.Context) (domain.Controls, error) {
	var out domain.Controls
	err := s.call(ctx, func() {
		s.applyControls(s.profile.DefaultControls(), true)
		out = s.controls
	})
	return out, err
}

// SendNow writes the current values at once, whatever the send mode.
func (s *Session) SendNow(ctx context.Context) error {
	var opErr error
	if err := s.call(ctx, func() {
		s.tx.Cancel()
		opErr = s.sendCurrent()
	}); err != nil {
		return err
	}
	return opErr
}

// applyControls stores c and schedules a write. Unchanged values are not
// resent unless force is set.
func (s *Session) applyControls(c domain.Controls, force bool) {
	if c == s.controls && !force {
		return
	}
	s.controls = c
	s.publish(domain.EventControlChanged, struct {
		domain.Controls
		Payload []int `json:"payload"`
	}{c, bytesToInts(c.Payload())})

	if s.tx.Changed() {
		_ = s.sendCurrent()
		return
	}
	s.armed = s.tx.Pending()
}

func (s *Session) onDebounceExpired() {
	s.post(func() {
		if !s.armed {
			return
		}
		_ = s.sendCurrent()
	})
}

// sendCurrent hands the current values to the transmitter, or fails with
// ErrNoWritableCharacteristic when there is nowhere to write them.
func (s *Session) sendCurrent() error {
	s.armed = false
	payload := s.controls.Payload()
	if s.target == nil || s.periph == nil {
		err := domain.NewDomainError("Session.Send", domain.ErrNoWritableCharacteristic, "")
		s.lastError = err.Error()
		s.logger.Warn("payload not sent", "payload", payload, "error", err)
		s.publish(domain.EventPayloadFailed, domain.WritePayload{
			Bytes: bytesToInts(payload),
			Error: err.Error(),
			Code:  domain.ErrorCodeOf(err),
		})
		return err
	}
	s.tx.Dispatch(transmit.Frame{
		Peripheral: s.periph,
		Target:     *s.target,
		Controls:   s.controls,
		Payload:    payload,
	})
	return nil
}

// onWriteResult runs on the writer goroutine.
func (s *Session) onWriteResult(r transmit.Result) {
	end := time.Now()
	_, span := tracer.StartSpan(s.ctx, "session.write", trace.WithTimestamp(end.Add(-r.Took)))
	if r.Frame.Peripheral != nil {
		span.SetAttributes(tracer.AddressAttr(r.Frame.Peripheral.Address()))
	}
	span.SetAttributes(
		tracer.StringAttr("ble.characteristic", r.Frame.Target.UUID),
		tracer.PayloadAttr(r.Frame.Payload),
	)
	if r.Err != nil {
		tracer.RecordError(span, r.Err)
	} else {
		tracer.SetOK(span)
	}
	span.End(trace.WithTimestamp(end))

	s.post(func() {
		bytes := bytesToInts(r.Frame.Payload)
		if r.Err != nil {
			s.lastError = r.Err.Error()
			s.logger.Warn("payload write failed", "characteristic", r.Frame.Target.UUID, "payload", r.Frame.Payload, "error", r.Err)
			s.publish(domain.EventPayloadFailed, domain.WritePayload{
				Characteristic: r.Frame.Target.UUID,
				Bytes:          bytes,
				Error:          r.Err.Error(),
				Code:           domain.ErrorCodeOf(r.Err),
			})
			return
		}
		s.lastSent = bytes
		s.logger.Debug("payload sent", "characteristic", r.Frame.Target.UUID, "payload", r.Frame.Payload, "took", r.Took)
		s.publish(domain.EventPayloadSent, domain.WritePayload{
			Characteristic: r.Frame.Target.UUID,
			Bytes:          bytes,
		})
	})
}
