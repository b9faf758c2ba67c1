package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"bleremote/internal/adapter/central/sim"
	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
	"bleremote/internal/usecase/eventbus"
	"bleremote/internal/usecase/session"
)

const (
	roverAddr = "24:0A:C4:12:34:56"
	uartRX    = "6e400002b5a3f393e0a9e50e24dcca9e"
)

type gatewayHarness struct {
	srv     *Server
	central *sim.Central
	metrics *Metrics
	ws      *websocket.Conn
	nextID  uint64
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	cfg := config.Defaults()
	cfg.BLE.Backend = "sim"
	cfg.BLE.ScanTimeout = 60 * time.Millisecond
	cfg.Control.Debounce = 150 * time.Millisecond

	central := sim.NewDemo()
	central.SetAdvertisingInterval(time.Millisecond)
	bus := eventbus.New(slog.Default())
	sess := session.New(central, bus, cfg, slog.Default())
	sess.Start(context.Background())
	t.Cleanup(func() {
		_ = sess.Close()
		bus.Close()
	})

	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", slog.Default())
	deps := HandlerDeps{Session: sess, Bus: bus, Logger: slog.Default(), Version: "test"}
	require.NoError(t, RegisterDefaultHandlers(srv, deps))
	metrics := RegisterRESTHandlers(srv, deps)
	runServer(t, srv)

	return &gatewayHarness{
		srv:     srv,
		central: central,
		metrics: metrics,
		ws:      dialWS(t, srv.BoundAddr(), "test-token"),
	}
}

func (h *gatewayHarness) call(t *testing.T, method string, payload any) Frame {
	t.Helper()
	h.nextID++
	return roundTrip(t, h.ws, h.nextID, method, payload)
}

func (h *gatewayHarness) ok(t *testing.T, method string, payload any, out any) {
	t.Helper()
	resp := h.call(t, method, payload)
	require.Empty(t, resp.Error, "%s failed", method)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Payload, out))
	}
}

func TestRegisterDefaultHandlersMethods(t *testing.T) {
	h := newGatewayHarness(t)
	want := []string{
		"device.scan", "device.list",
		"session.connect", "session.disconnect", "session.status",
		"gatt.services", "gatt.characteristics", "gatt.select",
		"control.set", "control.set_text", "control.center", "control.stop", "control.send",
	}
	assert.ElementsMatch(t, want, h.srv.Methods())
}

func TestGatewayDriveSession(t *testing.T) {
	h := newGatewayHarness(t)

	var devices devicesResult
	h.ok(t, "device.scan", nil, &devices)
	require.Len(t, devices.Devices, 2)

	var listed devicesResult
	h.ok(t, "device.list", map[string]any{}, &listed)
	assert.Len(t, listed.Devices, 2)

	var snap session.Snapshot
	h.ok(t, "session.connect", map[string]string{"address": roverAddr}, &snap)
	assert.Equal(t, domain.StateConnected, snap.State)
	require.NotNil(t, snap.Target)
	assert.Equal(t, uartRX, snap.Target.UUID)

	var svcs struct {
		Services []domain.ServiceRecord `json:"services"`
	}
	h.ok(t, "gatt.services", nil, &svcs)
	assert.Len(t, svcs.Services, 2)

	var chars struct {
		Characteristics []domain.CharacteristicRecord `json:"characteristics"`
	}
	h.ok(t, "gatt.characteristics", map[string]string{"service": "6e400001-b5a3-f393-e0a9-e50e24dcca9e"}, &chars)
	assert.Len(t, chars.Characteristics, 2)

	var sel struct {
		Target domain.CharacteristicRecord `json:"target"`
	}
	h.ok(t, "gatt.select", map[string]string{"uuid": uartRX}, &sel)
	assert.Equal(t, uartRX, sel.Target.UUID)

	var controls struct {
		Controls domain.Controls `json:"controls"`
	}
	h.ok(t, "control.set", map[string]any{"axis": "forward", "value": 20}, &controls)
	h.ok(t, "control.set", map[string]any{"axis": "turn", "value": -20}, &controls)
	assert.Equal(t, domain.Controls{Forward: 20, Turn: -20}, controls.Controls)

	require.Eventually(t, func() bool {
		return len(h.central.Writes(roverAddr)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{20, 0xEC}, h.central.Writes(roverAddr)[0].Data)

	h.ok(t, "control.send", nil, nil)
	require.Eventually(t, func() bool {
		return len(h.central.Writes(roverAddr)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	h.ok(t, "control.stop", nil, &controls)
	assert.Equal(t, domain.Controls{}, controls.Controls)

	var after session.Snapshot
	h.ok(t, "session.disconnect", nil, &after)
	assert.Equal(t, domain.StateDisconnected, after.State)
	assert.Nil(t, after.Target)
}

func TestGatewayControlErrors(t *testing.T) {
	h := newGatewayHarness(t)

	resp := h.call(t, "control.set_text", map[string]string{"axis": "forward", "text": "abc"})
	assert.Equal(t, domain.CodeControlInvalidInput, resp.Code)

	resp = h.call(t, "control.set", map[string]any{"axis": "sideways", "value": 1})
	assert.Equal(t, domain.CodeRPCInvalidPayload, resp.Code)

	resp = h.call(t, "control.send", nil)
	assert.Equal(t, domain.CodeNoWritableCharacteristic, resp.Code)

	resp = h.call(t, "gatt.select", map[string]string{"uuid": uartRX})
	assert.Equal(t, domain.CodeNotConnected, resp.Code)

	resp = h.call(t, "session.connect", map[string]string{})
	assert.Equal(t, domain.CodeRPCInvalidPayload, resp.Code)

	var controls struct {
		Controls domain.Controls `json:"controls"`
	}
	h.ok(t, "control.set_text", map[string]string{"axis": "turn", "text": "15"}, &controls)
	assert.Equal(t, 15, controls.Controls.Turn)
	h.ok(t, "control.center", map[string]string{"axis": "turn"}, &controls)
	assert.Equal(t, 0, controls.Controls.Turn)
}

func TestStatusEndpoint(t *testing.T) {
	h := newGatewayHarness(t)
	base := "http://" + h.srv.BoundAddr()

	resp, err := http.Get(base + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "bleremote", status.Service.Name)
	assert.Equal(t, "test", status.Service.Version)
	assert.Equal(t, "sim", status.Session.Backend)
	assert.Equal(t, domain.StateDisconnected, status.Session.State)
	assert.Equal(t, 13, status.Gateway.Methods)

	resp, err = http.Post(base+"/api/v1/status?token=test-token", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	h := newGatewayHarness(t)

	resp, err := http.Get("http://" + h.srv.BoundAddr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsEndpointCountsEvents(t *testing.T) {
	h := newGatewayHarness(t)
	h.ok(t, "device.scan", nil, nil)
	h.ok(t, "session.connect", map[string]string{"address": roverAddr}, nil)

	require.Eventually(t, func() bool {
		return h.metrics.ScansTotal.Load() == 1 && h.metrics.DevicesFound.Load() == 2 && h.metrics.ConnectionsTotal.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + h.srv.BoundAddr() + "/metrics?token=test-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, text, "bleremote_scans_total 1\n")
	assert.Contains(t, text, "bleremote_devices_found_total 2\n")
	assert.Contains(t, text, "bleremote_connected 1\n")
}

func TestPortOf(t *testing.T) {
	port, err := portOf("127.0.0.1:8787")
	require.NoError(t, err)
	assert.Equal(t, 8787, port)

	_, err = portOf("localhost")
	assert.Error(t, err)
	_, err = portOf("127.0.0.1:0")
	assert.Error(t, err)
}
