package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/transport"
	"github.com/blekit/gattc/internal/transport/goble"
	"github.com/blekit/gattc/pkg/config"
)

// backendFactory creates the transport backend (overridable in tests).
var backendFactory = func(logger *logrus.Logger) transport.Backend {
	return goble.NewBackend(logger)
}

// newCentral builds and starts a Central over the platform backend.
func newCentral(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *central.Central {
	c := central.New(backendFactory(logger), logger, &central.Options{EventBuffer: cfg.EventBuffer})
	c.Start(ctx)
	return c
}

// signalContext derives a context cancelled by Ctrl+C / SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// parseDeviceID normalizes a user-supplied address ("aa:bb:cc:dd:ee:ff",
// "AA-BB-..." or bare 12 hex digits) to the internal device identifier.
func parseDeviceID(address string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(address))
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 12 {
		return "", fmt.Errorf("invalid device address %q: want 6 hex byte pairs", address)
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid device address %q: non-hex digit", address)
		}
	}
	return s, nil
}

// connectByAddress scans until the target device advertises, then connects
// to it. The watcher is stopped before dialing either way.
func connectByAddress(ctx context.Context, c *central.Central, address string, scanTimeout time.Duration) (string, error) {
	id, err := parseDeviceID(address)
	if err != nil {
		return "", err
	}

	if err := c.StartScanning(nil, false); err != nil {
		return "", err
	}

	deadline := time.After(scanTimeout)
	found := false
	for !found {
		select {
		case ev := <-c.Events():
			if d, ok := ev.(central.DiscoverEvent); ok && d.DeviceID == id {
				found = true
			}
		case <-deadline:
			_ = c.StopScanning()
			return "", fmt.Errorf("device %s not found within %s", address, scanTimeout)
		case <-ctx.Done():
			_ = c.StopScanning()
			return "", ctx.Err()
		}
	}
	_ = c.StopScanning()

	if err := c.Connect(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}
