package central

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blekit/gattc/internal/transport"
)

// hookedCharacteristic lets a test run code in the middle of a CCCD write,
// between the entry lookup and the entry removal.
type hookedCharacteristic struct {
	onCCCD func()
}

func (c *hookedCharacteristic) Release() {}

func (c *hookedCharacteristic) UUID() string { return "2a37" }

func (c *hookedCharacteristic) Properties() transport.Properties { return transport.PropNotify }

func (c *hookedCharacteristic) Descriptors(ctx context.Context, mode transport.CacheMode) ([]transport.Descriptor, transport.Status, error) {
	return nil, transport.StatusSuccess, nil
}

func (c *hookedCharacteristic) Read(ctx context.Context) ([]byte, transport.Status, error) {
	return nil, transport.StatusSuccess, nil
}

func (c *hookedCharacteristic) Write(ctx context.Context, data []byte, withResponse bool) (transport.Status, error) {
	return transport.StatusSuccess, nil
}

func (c *hookedCharacteristic) WriteCCCD(ctx context.Context, value transport.CCCDValue) (transport.Status, error) {
	if c.onCCCD != nil {
		c.onCCCD()
	}
	return transport.StatusSuccess, nil
}

func (c *hookedCharacteristic) OnValueChanged(fn func([]byte)) transport.Listener {
	return noopListener{}
}

type noopListener struct{}

func (noopListener) Detach() {}

func TestDisableOverlappingDeviceDropReleasesOnce(t *testing.T) {
	// GOAL: Verify a disable whose entry is removed by a concurrent device
	// drop mid-write does not return the liveness ref a second time.

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	emitter := NewEmitter(16, logger)
	monitor := NewRadioMonitor(emitter, logger)
	m := NewSubscriptionManager(nil, monitor, emitter, logger)

	keyA := subKey{device: "aa", service: "180d", characteristic: "2a37"}
	keyB := subKey{device: "bb", service: "180d", characteristic: "2a37"}

	// The drop lands between disable's entry lookup and its removal, the
	// widest window the lock leaves open.
	charA := &hookedCharacteristic{}
	charA.onCCCD = func() { m.DropDevice("aa") }

	// Seed two live subscriptions the way enable would leave them.
	m.mu.Lock()
	m.entries[keyA] = &subscriptionEntry{char: charA, listener: noopListener{}}
	m.entries[keyB] = &subscriptionEntry{char: &hookedCharacteristic{}, listener: noopListener{}}
	m.mu.Unlock()
	monitor.Retain()
	monitor.Retain()

	require.NoError(t, m.disable(context.Background(), keyA))

	assert.False(t, m.Active("aa", "180d", "2a37"))
	assert.True(t, m.Active("bb", "180d", "2a37"), "the other device's subscription MUST survive")
	assert.Equal(t, 1, monitor.Refs(), "exactly one ref MUST be returned for the dropped subscription")
}
