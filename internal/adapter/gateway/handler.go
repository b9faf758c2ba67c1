package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bleremote/internal/domain"
	"bleremote/internal/usecase/session"
)

// Controller is the part of the session the gateway drives.
type Controller interface {
	Scan(ctx context.Context) ([]domain.DiscoveredDevice, error)
	Devices(ctx context.Context) ([]domain.DiscoveredDevice, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Services(ctx context.Context) ([]domain.ServiceRecord, error)
	Characteristics(ctx context.Context, serviceUUID string) ([]domain.CharacteristicRecord, error)
	SelectCharacteristic(ctx context.Context, uuid string) (domain.CharacteristicRecord, error)
	SetControl(ctx context.Context, axis domain.Axis, value int) (domain.Controls, error)
	SetControlText(ctx context.Context, axis domain.Axis, text string) (domain.Controls, error)
	Center(ctx context.Context, axis domain.Axis) (domain.Controls, error)
	Stop(ctx context.Context) (domain.Controls, error)
	SendNow(ctx context.Context) error
}

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Session Controller
	Bus     domain.EventBus // can be nil
	Logger  *slog.Logger
	Version string
}

const (
	schemaEmpty = `{"type": "object", "additionalProperties": false}`

	schemaConnect = `{
		"type": "object",
		"properties": {"address": {"type": "string", "minLength": 1}},
		"required": ["address"],
		"additionalProperties": false
	}`

	schemaService = `{
		"type": "object",
		"properties": {"service": {"type": "string", "minLength": 1}},
		"required": ["service"],
		"additionalProperties": false
	}`

	schemaSelect = `{
		"type": "object",
		"properties": {"uuid": {"type": "string", "minLength": 1}},
		"required": ["uuid"],
		"additionalProperties": false
	}`

	schemaSet = `{
		"type": "object",
		"properties": {
			"axis": {"enum": ["forward", "turn", "id", "value"]},
			"value": {"type": "integer"}
		},
		"required": ["axis", "value"],
		"additionalProperties": false
	}`

	schemaSetText = `{
		"type": "object",
		"properties": {
			"axis": {"enum": ["forward", "turn", "id", "value"]},
			"text": {"type": "string", "maxLength": 16}
		},
		"required": ["axis", "text"],
		"additionalProperties": false
	}`

	schemaAxis = `{
		"type": "object",
		"properties": {"axis": {"enum": ["forward", "turn", "id", "value"]}},
		"required": ["axis"],
		"additionalProperties": false
	}`
)

// RegisterDefaultHandlers registers every session RPC on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) error {
	methods := []struct {
		name    string
		schema  string
		handler RPCHandler
	}{
		{"device.scan", schemaEmpty, deviceScanHandler(deps)},
		{"device.list", schemaEmpty, deviceListHandler(deps)},
		{"session.connect", schemaConnect, sessionConnectHandler(deps)},
		{"session.disconnect", schemaEmpty, sessionDisconnectHandler(deps)},
		{"session.status", schemaEmpty, sessionStatusHandler(deps)},
		{"gatt.services", schemaEmpty, gattServicesHandler(deps)},
		{"gatt.characteristics", schemaService, gattCharacteristicsHandler(deps)},
		{"gatt.select", schemaSelect, gattSelectHandler(deps)},
		{"control.set", schemaSet, controlSetHandler(deps)},
		{"control.set_text", schemaSetText, controlSetTextHandler(deps)},
		{"control.center", schemaAxis, controlCenterHandler(deps)},
		{"control.stop", schemaEmpty, controlStopHandler(deps)},
		{"control.send", schemaEmpty, controlSendHandler(deps)},
	}
	for _, m := range methods {
		if err := s.RegisterMethod(m.name, m.schema, m.handler); err != nil {
			return err
		}
	}
	return nil
}

// decode unmarshals an already-validated payload.
func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
	}
	return v, nil
}

func reply(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return raw, nil
}

type devicesResult struct {
	Devices []domain.DiscoveredDevice `json:"devices"`
}

func deviceScanHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		deps.Logger.Info("gateway scan requested", "client", client.Name)
		devices, err := deps.Session.Scan(ctx)
		if err != nil {
			return nil, err
		}
		return reply(devicesResult{Devices: devices})
	}
}

func deviceListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		devices, err := deps.Session.Devices(ctx)
		if err != nil {
			return nil, err
		}
		return reply(devicesResult{Devices: devices})
	}
}

type connectParams struct {
	Address string `json:"address"`
}

func sessionConnectHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		p, err := decode[connectParams](payload)
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("gateway connect requested", "client", client.Name, "address", p.Address)
		if err := deps.Session.Connect(ctx, p.Address); err != nil {
			return nil, err
		}
		return statusResult(ctx, deps)
	}
}

func sessionDisconnectHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		if err := deps.Session.Disconnect(ctx); err != nil {
			return nil, err
		}
		return statusResult(ctx, deps)
	}
}

func sessionStatusHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return statusResult(ctx, deps)
	}
}

func statusResult(ctx context.Context, deps HandlerDeps) (json.RawMessage, error) {
	snap, err := deps.Session.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return reply(snap)
}

func gattServicesHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		svcs, err := deps.Session.Services(ctx)
		if err != nil {
			return nil, err
		}
		return reply(map[string]any{"services": svcs})
	}
}

type serviceParams struct {
	Service string `json:"service"`
}

func gattCharacteristicsHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		p, err := decode[serviceParams](payload)
		if err != nil {
			return nil, err
		}
		chars, err := deps.Session.Characteristics(ctx, p.Service)
		if err != nil {
			return nil, err
		}
		return reply(map[string]any{"characteristics": chars})
	}
}

type selectParams struct {
	UUID string `json:"uuid"`
}

func gattSelectHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		p, err := decode[selectParams](payload)
		if err != nil {
			return nil, err
		}
		c, err := deps.Session.SelectCharacteristic(ctx, p.UUID)
		if err != nil {
			return nil, err
		}
		return reply(map[string]any{"target": c})
	}
}

type controlParams struct {
	Axis  string `json:"axis"`
	Value int    `json:"value"`
	Text  string `json:"text"`
}

func controlsResult(c domain.Controls, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"controls": c})
}

// controlHandler decodes the axis shared by the control.* methods.
func controlHandler(fn func(ctx context.Context, axis domain.Axis, p controlParams) (domain.Controls, error)) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		p, err := decode[controlParams](payload)
		if err != nil {
			return nil, err
		}
		axis, err := domain.ParseAxis(p.Axis)
		if err != nil {
			return nil, err
		}
		return controlsResult(fn(ctx, axis, p))
	}
}

func controlSetHandler(deps HandlerDeps) RPCHandler {
	return controlHandler(func(ctx context.Context, axis domain.Axis, p controlParams) (domain.Controls, error) {
		return deps.Session.SetControl(ctx, axis, p.Value)
	})
}

func controlSetTextHandler(deps HandlerDeps) RPCHandler {
	return controlHandler(func(ctx context.Context, axis domain.Axis, p controlParams) (domain.Controls, error) {
		return deps.Session.SetControlText(ctx, axis, p.Text)
	})
}

func controlCenterHandler(deps HandlerDeps) RPCHandler {
	return controlHandler(func(ctx context.Context, axis domain.Axis, _ controlParams) (domain.Controls, error) {
		return deps.Session.Center(ctx, axis)
	})
}

func controlStopHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return controlsResult(deps.Session.Stop(ctx))
	}
}

func controlSendHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		if err := deps.Session.SendNow(ctx); err != nil {
			return nil, err
		}
		return reply(map[string]bool{"sent": true})
	}
}
