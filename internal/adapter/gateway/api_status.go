package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"bleremote/internal/domain"
	"bleremote/internal/usecase/session"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service ServiceStatus    `json:"service"`
	Session session.Snapshot `json:"session"`
	Gateway GatewayStatus    `json:"gateway"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// GatewayStatus holds gateway counters.
type GatewayStatus struct {
	Methods        int   `json:"methods"`
	PayloadsSent   int64 `json:"payloads_sent"`
	PayloadsFailed int64 `json:"payloads_failed"`
}

// Metrics tracks counters for the status API and the /metrics endpoint.
type Metrics struct {
	ScansTotal       atomic.Int64
	DevicesFound     atomic.Int64
	ConnectionsTotal atomic.Int64
	ConnectionErrors atomic.Int64
	PayloadsSent     atomic.Int64
	PayloadsFailed   atomic.Int64
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(s *Server, deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap, err := deps.Session.Snapshot(r.Context())
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
				"code":  string(domain.ErrorCodeOf(err)),
			})
			return
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "bleremote",
				Version:       deps.Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Session: snap,
			Gateway: GatewayStatus{
				Methods:        len(s.Methods()),
				PayloadsSent:   metrics.PayloadsSent.Load(),
				PayloadsFailed: metrics.PayloadsFailed.Load(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// RegisterRESTHandlers registers the HTTP endpoints on the gateway server.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}

	if deps.Bus != nil {
		count := func(t domain.EventType, c *atomic.Int64) {
			deps.Bus.Subscribe(t, func(context.Context, domain.Event) { c.Add(1) })
		}
		count(domain.EventScanStarted, &metrics.ScansTotal)
		count(domain.EventDeviceFound, &metrics.DevicesFound)
		count(domain.EventConnectionError, &metrics.ConnectionErrors)
		count(domain.EventPayloadSent, &metrics.PayloadsSent)
		count(domain.EventPayloadFailed, &metrics.PayloadsFailed)
		deps.Bus.Subscribe(domain.EventConnectionState, func(_ context.Context, e domain.Event) {
			var p domain.ConnectionStatePayload
			if json.Unmarshal(e.Payload, &p) == nil && p.To == domain.StateConnecting {
				metrics.ConnectionsTotal.Add(1)
			}
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(tokenFromRequest(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/healthz", healthHandler)
	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(s, deps, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))

	return metrics
}
