package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_bleremote._tcp"
	mdnsDomain      = "local."
)

// Advertise registers the gateway on the local network via mDNS/DNS-SD.
// It blocks until ctx is cancelled. Call it in a goroutine.
func Advertise(ctx context.Context, instance, boundAddr string, txt map[string]string, logger *slog.Logger) error {
	port, err := portOf(boundAddr)
	if err != nil {
		return err
	}
	records := make([]string, 0, len(txt))
	for k, v := range txt {
		records = append(records, k+"="+v)
	}

	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, port, records, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	logger.Info("mdns advertising", "instance", instance, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("mdns: gateway address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("mdns: gateway port %q is not usable", p)
	}
	return port, nil
}
