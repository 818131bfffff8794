// Package testutils provides an in-memory transport backend with fluent
// builders for configuring fake peripherals, radios and advertisement
// streams in tests.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/blekit/gattc/internal/transport"
)

// FakeBackend is an in-memory transport.Backend. Peripherals are added
// with AddPeripheral; radios with WithRadio. Watchers created through the
// backend are recorded so tests can inject advertisement events.
type FakeBackend struct {
	mu          sync.Mutex
	radios      []transport.Radio
	radiosErr   error
	peripherals map[uint64]*FakePeripheral
	watchers    []*FakeWatcher

	ConnectErr   error
	ConnectCalls int
}

// NewFakeBackend creates an empty backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		peripherals: make(map[uint64]*FakePeripheral),
	}
}

// WithRadio adds a Bluetooth-capable radio in the given state and returns
// it so tests can drive state transitions.
func (b *FakeBackend) WithRadio(state transport.RadioState) *FakeRadio {
	r := &FakeRadio{hasBluetooth: true, state: state}
	b.mu.Lock()
	b.radios = append(b.radios, r)
	b.mu.Unlock()
	return r
}

// WithRadioNoBluetooth adds a radio without Bluetooth capability.
func (b *FakeBackend) WithRadioNoBluetooth() *FakeBackend {
	b.mu.Lock()
	b.radios = append(b.radios, &FakeRadio{hasBluetooth: false})
	b.mu.Unlock()
	return b
}

// WithRadiosError makes radio enumeration fail.
func (b *FakeBackend) WithRadiosError(err error) *FakeBackend {
	b.mu.Lock()
	b.radiosErr = err
	b.mu.Unlock()
	return b
}

// AddPeripheral registers a peripheral reachable by its address.
func (b *FakeBackend) AddPeripheral(p *FakePeripheral) *FakeBackend {
	b.mu.Lock()
	b.peripherals[p.Address] = p
	b.mu.Unlock()
	return b
}

// Radios implements transport.Backend.
func (b *FakeBackend) Radios(ctx context.Context) ([]transport.Radio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.radiosErr != nil {
		return nil, b.radiosErr
	}
	return append([]transport.Radio(nil), b.radios...), nil
}

// NewWatcher implements transport.Backend.
func (b *FakeBackend) NewWatcher(serviceUUIDs []string, allowDuplicates bool) (transport.Watcher, error) {
	w := &FakeWatcher{ServiceUUIDs: serviceUUIDs, AllowDuplicates: allowDuplicates}
	b.mu.Lock()
	b.watchers = append(b.watchers, w)
	b.mu.Unlock()
	return w, nil
}

// Watcher returns the most recently created watcher, or nil.
func (b *FakeBackend) Watcher() *FakeWatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.watchers) == 0 {
		return nil
	}
	return b.watchers[len(b.watchers)-1]
}

// Connect implements transport.Backend.
func (b *FakeBackend) Connect(ctx context.Context, address uint64) (transport.Connection, error) {
	b.mu.Lock()
	b.ConnectCalls++
	err := b.ConnectErr
	p := b.peripherals[address]
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no peripheral at address %012x", address)
	}
	return p.newConnection(), nil
}

// FakeRadio implements transport.Radio with test-driven state changes.
type FakeRadio struct {
	mu           sync.Mutex
	hasBluetooth bool
	state        transport.RadioState
	listeners    []func(transport.RadioState)
}

func (r *FakeRadio) HasBluetooth() bool {
	return r.hasBluetooth
}

func (r *FakeRadio) State() transport.RadioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *FakeRadio) OnStateChanged(fn func(transport.RadioState)) func() {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	idx := len(r.listeners) - 1
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.listeners[idx] = nil
		r.mu.Unlock()
	}
}

// SetState changes the platform state and fires the state-changed signal,
// even when the value is unchanged (tests rely on repeated signals).
func (r *FakeRadio) SetState(s transport.RadioState) {
	r.mu.Lock()
	r.state = s
	listeners := append([]func(transport.RadioState){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(s)
		}
	}
}

// FakeWatcher implements transport.Watcher. Events are injected
// synchronously with Inject.
type FakeWatcher struct {
	mu              sync.Mutex
	started         bool
	onReceived      func(transport.AdvertisementEvent)
	onStopped       func(transport.WatcherStatus)
	ServiceUUIDs    []string
	AllowDuplicates bool
	StartCalls      int
	StopCalls       int
}

func (w *FakeWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
	w.StartCalls++
	return nil
}

func (w *FakeWatcher) Stop() error {
	w.mu.Lock()
	w.started = false
	w.StopCalls++
	stopped := w.onStopped
	w.mu.Unlock()

	if stopped != nil {
		stopped(transport.WatcherStopped)
	}
	return nil
}

func (w *FakeWatcher) OnReceived(fn func(transport.AdvertisementEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReceived = fn
}

func (w *FakeWatcher) OnStopped(fn func(transport.WatcherStatus)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStopped = fn
}

// Started reports the watcher run state.
func (w *FakeWatcher) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Inject delivers one advertisement event to the receiver callback.
func (w *FakeWatcher) Inject(ev transport.AdvertisementEvent) {
	w.mu.Lock()
	received := w.onReceived
	w.mu.Unlock()
	if received != nil {
		received(ev)
	}
}

// Abort simulates a platform-side watcher abort.
func (w *FakeWatcher) Abort() {
	w.mu.Lock()
	w.started = false
	stopped := w.onStopped
	w.mu.Unlock()
	if stopped != nil {
		stopped(transport.WatcherAborted)
	}
}
