package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"bleremote/internal/domain"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	counter := func(w http.ResponseWriter, name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}
	gauge := func(w http.ResponseWriter, name, help string, v float64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %g\n", name, v)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counter(w, "bleremote_scans_total", "Scans started.", metrics.ScansTotal.Load())
		counter(w, "bleremote_devices_found_total", "Distinct devices reported by scans.", metrics.DevicesFound.Load())
		counter(w, "bleremote_connections_total", "Connection attempts.", metrics.ConnectionsTotal.Load())
		counter(w, "bleremote_connection_errors_total", "Controller errors.", metrics.ConnectionErrors.Load())
		counter(w, "bleremote_payloads_sent_total", "Characteristic writes that succeeded.", metrics.PayloadsSent.Load())
		counter(w, "bleremote_payloads_failed_total", "Characteristic writes that failed.", metrics.PayloadsFailed.Load())

		connected := 0.0
		if snap, err := deps.Session.Snapshot(r.Context()); err == nil && snap.State != domain.StateDisconnected {
			connected = 1
		}
		gauge(w, "bleremote_connected", "Whether a peripheral link is open.", connected)
		gauge(w, "bleremote_uptime_seconds", "Seconds since the gateway started.", float64(int64(time.Since(startTime).Seconds())))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge(w, "go_goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))
		gauge(w, "go_memstats_alloc_bytes", "Bytes of allocated heap objects.", float64(mem.Alloc))
	}
}
