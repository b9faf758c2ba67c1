package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bleremote/internal/adapter/central/goble"
	"bleremote/internal/adapter/central/sim"
	"bleremote/internal/adapter/gateway"
	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
	"bleremote/internal/infra/middleware"
	"bleremote/internal/infra/tracer"
	"bleremote/internal/usecase/eventbus"
	"bleremote/internal/usecase/session"
)

// app holds the components shared by the panel and the headless bridge.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	bus     *eventbus.Bus
	central domain.Central
	session *session.Session
	cleanup []func()
}

// newCentral builds the BLE backend named by the config.
func newCentral(cfg config.BLEConfig, log *slog.Logger) (domain.Central, error) {
	switch cfg.Backend {
	case "hci", "":
		return goble.New(goble.Config{
			AdapterID:       cfg.AdapterID,
			AllowDuplicates: cfg.AllowDuplicates,
		}, log), nil
	case "sim":
		return sim.NewDemo(), nil
	default:
		return nil, fmt.Errorf("unknown ble backend: %s (want: hci, sim)", cfg.Backend)
	}
}

// bootstrap wires tracer, bus, central and session. Close releases them in
// reverse order.
func bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tracerShutdown(sctx)
	})

	a.bus = eventbus.New(log)
	a.onClose(a.bus.Close)

	a.central, err = newCentral(cfg.BLE, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() {
		if err := a.central.Close(); err != nil {
			log.Warn("central close failed", "error", err)
		}
	})

	a.session = session.New(a.central, a.bus, cfg, log)
	a.session.Start(ctx)
	a.onClose(func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.session.Disconnect(dctx)
		_ = a.session.Close()
	})
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.cleanup = append(a.cleanup, fn)
}

// Close runs the cleanup functions, last registered first.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// startGateway starts the WebSocket bridge and returns once it is listening.
// mDNS advertisement runs until ctx ends.
func (a *app) startGateway(ctx context.Context) (*gateway.Server, error) {
	gcfg := a.cfg.Gateway
	srv := gateway.NewServer(a.bus, gateway.NewAuthenticator(gcfg.Auth), gcfg.Addr, a.log)
	srv.Use(
		middleware.SecurityHeaders,
		middleware.RequestLog(a.log),
		middleware.RateLimit(ctx, gcfg.RateLimit.RequestsPerMin, gcfg.RateLimit.Burst),
	)

	deps := gateway.HandlerDeps{Session: a.session, Bus: a.bus, Logger: a.log, Version: version}
	if err := gateway.RegisterDefaultHandlers(srv, deps); err != nil {
		return nil, err
	}
	gateway.RegisterRESTHandlers(srv, deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		if err == nil {
			err = fmt.Errorf("gateway stopped before listening")
		}
		return nil, err
	case <-time.After(shutdownTimeout):
		return nil, fmt.Errorf("gateway did not start within %s", shutdownTimeout)
	}

	go func() {
		if err := <-errCh; err != nil {
			a.log.Error("gateway server error", "error", err)
		}
	}()
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Stop(sctx)
	})

	if gcfg.MDNS {
		txt := map[string]string{
			"version": version,
			"backend": a.central.Name(),
			"profile": a.cfg.Control.ResolveProfile().Name,
		}
		go func() {
			if err := gateway.Advertise(ctx, gcfg.Instance, srv.BoundAddr(), txt, a.log); err != nil {
				a.log.Warn("mdns advertise failed", "error", err)
			}
		}()
	}
	return srv, nil
}
