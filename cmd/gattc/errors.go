package main

import (
	"errors"

	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/transport/goble"
)

// FormatUserError turns core and driver errors into a message an operator
// can act on, falling back to the raw error text.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off - enable it and try again"
	case central.IsKind(err, central.KindNotFound):
		return err.Error() + " (run 'gattc scan' to discover devices first)"
	case central.IsKind(err, central.KindInvalidState):
		return err.Error()
	case central.IsKind(err, central.KindUnsupported):
		return err.Error()
	default:
		return err.Error()
	}
}
