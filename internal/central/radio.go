package central

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/groutine"
	"github.com/blekit/gattc/internal/transport"
)

// RadioMonitor tracks the local adapter power state and emits a
// stateChange event on every actual transition. Repeated platform signals
// carrying the same resolved state produce no event.
type RadioMonitor struct {
	mu          sync.Mutex
	state       RadioState
	radio       transport.Radio // nil under unsupported / before resolution
	refs        int             // liveness references held by active subscriptions
	cancelWatch func()

	emitter *Emitter
	logger  *logrus.Logger
}

// NewRadioMonitor creates a monitor in the unknown state.
func NewRadioMonitor(emitter *Emitter, logger *logrus.Logger) *RadioMonitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &RadioMonitor{
		state:   RadioUnknown,
		emitter: emitter,
		logger:  logger,
	}
}

// Start launches the initial asynchronous radio enumeration and hooks the
// platform state-changed signal of the first Bluetooth-capable radio.
func (m *RadioMonitor) Start(ctx context.Context, backend transport.Backend) {
	groutine.Go(ctx, "radio-monitor-init", func(ctx context.Context) {
		radios, err := backend.Radios(ctx)
		if err != nil {
			m.logger.WithField("error", err).Warn("Radio enumeration failed")
			m.transition(RadioUnsupported)
			return
		}

		var selected transport.Radio
		for _, r := range radios {
			if r.HasBluetooth() {
				selected = r
				break
			}
		}
		if selected == nil {
			m.transition(RadioUnsupported)
			return
		}

		m.mu.Lock()
		m.radio = selected
		m.cancelWatch = selected.OnStateChanged(m.onPlatformState)
		m.mu.Unlock()

		m.onPlatformState(selected.State())
	})
}

// Stop deregisters the platform state listener.
func (m *RadioMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancelWatch
	m.cancelWatch = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// onPlatformState folds a platform radio state into the reported state.
// Off and Disabled are reported identically as poweredOff.
func (m *RadioMonitor) onPlatformState(s transport.RadioState) {
	switch s {
	case transport.RadioStateOn:
		m.transition(RadioPoweredOn)
	case transport.RadioStateOff, transport.RadioStateDisabled:
		m.transition(RadioPoweredOff)
	default:
		m.transition(RadioUnknown)
	}
}

func (m *RadioMonitor) transition(next RadioState) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"from": prev,
		"to":   next,
	}).Info("Radio state changed")
	m.emitter.Emit(StateChangeEvent{State: next})
}

// State returns the last reported state.
func (m *RadioMonitor) State() RadioState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retain takes a liveness reference keeping the adapter handle alive while
// subscriptions are active.
func (m *RadioMonitor) Retain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs++
}

// Release drops a liveness reference taken with Retain.
func (m *RadioMonitor) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs > 0 {
		m.refs--
	}
}

// Refs returns the current liveness reference count.
func (m *RadioMonitor) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}
