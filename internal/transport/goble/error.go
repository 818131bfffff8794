package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blekit/gattc/internal/transport"
)

// Sentinel errors for known platform failure modes, matchable with
// errors.Is after NormalizeError wrapping.
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrNotConnected = errors.New("device not connected")
	ErrDialFailed   = errors.New("connection attempt failed")
)

// NormalizeError maps known go-ble error strings to the sentinels above.
// It keeps handling consistent even if the upstream library changes
// messages slightly, and wraps to preserve the original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"),
		containsIgnoreCase(msg, "connection closed"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "can't dial"),
		containsIgnoreCase(msg, "connect failed"):
		return fmt.Errorf("%w: %v", ErrDialFailed, err)
	default:
		return err
	}
}

// classify turns a go-ble operation error into the transport status pair.
// Link-level losses map to unreachable; ATT-level rejections map to
// protocolError.
func classify(err error) (transport.Status, error) {
	if err == nil {
		return transport.StatusSuccess, nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "att"),
		containsIgnoreCase(msg, "request failed"),
		containsIgnoreCase(msg, "invalid"):
		return transport.StatusProtocolError, NormalizeError(err)
	default:
		return transport.StatusUnreachable, NormalizeError(err)
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
