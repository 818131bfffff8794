package goble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blekit/gattc/internal/transport"
)

func TestNormalizeError(t *testing.T) {
	// GOAL: Verify known driver error strings map to matchable sentinels
	// while unknown errors pass through untouched.

	tests := []struct {
		name     string
		input    error
		sentinel error
	}{
		{"nil stays nil", nil, nil},
		{"powered off prompt", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), ErrBluetoothOff},
		{"explicit off", errors.New("Bluetooth is turned off"), ErrBluetoothOff},
		{"link drop", errors.New("peer disconnected"), ErrNotConnected},
		{"dial failure", errors.New("can't dial: timeout"), ErrDialFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.input)
			if tt.sentinel == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.sentinel, "error MUST be matchable with errors.Is")
			assert.Contains(t, got.Error(), tt.input.Error(), "original context MUST be preserved")
		})
	}

	t.Run("unknown error passes through", func(t *testing.T) {
		in := errors.New("something else entirely")
		assert.Same(t, in, NormalizeError(in))
	})
}

func TestClassify(t *testing.T) {
	// GOAL: Verify GATT operation errors split into unreachable vs
	// protocolError statuses.

	status, err := classify(nil)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusSuccess, status)

	status, err = classify(errors.New("ATT request failed: error code 0x0e"))
	require.Error(t, err)
	assert.Equal(t, transport.StatusProtocolError, status)

	status, err = classify(errors.New("connection closed by peer"))
	require.Error(t, err)
	assert.Equal(t, transport.StatusUnreachable, status)
}

func TestParseAddr(t *testing.T) {
	// GOAL: Verify MAC string parsing round-trips with the raw 48-bit form.

	addr, err := parseAddr("00:11:22:33:44:AA")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0011223344aa), addr)

	addr, err = parseAddr("c0-00-00-00-00-01")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xc00000000001), addr)

	_, err = parseAddr("not-an-address")
	assert.Error(t, err)

	_, err = parseAddr("00:11:22:33:44")
	assert.Error(t, err, "short addresses MUST be rejected")
}
