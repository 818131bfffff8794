// Package goble implements the transport boundary on top of
// github.com/go-ble/ble. The platform stack merges scan responses into the
// advertisement it delivers, so the watcher forwards each sighting as a
// classifying primary packet followed by a scan-response packet.
package goble

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/groutine"
	"github.com/blekit/gattc/internal/transport"
)

// txPowerUnavailable is the sentinel go-ble reports when the advertisement
// carries no TX power section.
const txPowerUnavailable = 127

// Backend implements transport.Backend over one platform ble.Device, which
// is created lazily on first use and shared by scanning and dialing.
type Backend struct {
	mu     sync.Mutex
	dev    ble.Device
	devErr error
	opened bool

	logger *logrus.Logger
}

// NewBackend creates a Backend. The platform device is not touched until
// Radios, NewWatcher or Connect is called.
func NewBackend(logger *logrus.Logger) *Backend {
	if logger == nil {
		logger = logrus.New()
	}
	return &Backend{logger: logger}
}

func (b *Backend) device() (ble.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		b.dev, b.devErr = DeviceFactory()
		b.devErr = NormalizeError(b.devErr)
		b.opened = true
	}
	return b.dev, b.devErr
}

// Radios implements transport.Backend. go-ble exposes a single host
// adapter; it is reported Bluetooth-capable when the platform device opens,
// and capability-less otherwise so the monitor resolves to unsupported.
func (b *Backend) Radios(ctx context.Context) ([]transport.Radio, error) {
	dev, err := b.device()
	if err != nil {
		b.logger.WithField("error", err).Warn("Platform Bluetooth device unavailable")
		return []transport.Radio{&hostRadio{}}, nil
	}
	return []transport.Radio{&hostRadio{dev: dev}}, nil
}

// NewWatcher implements transport.Backend.
func (b *Backend) NewWatcher(serviceUUIDs []string, allowDuplicates bool) (transport.Watcher, error) {
	dev, err := b.device()
	if err != nil {
		return nil, err
	}
	filter := make(map[string]bool, len(serviceUUIDs))
	for _, u := range serviceUUIDs {
		if n := bledb.NormalizeUUID(u); n != "" {
			filter[n] = true
		}
	}
	return &watcher{
		dev:      dev,
		filter:   filter,
		allowDup: allowDuplicates,
		logger:   b.logger,
	}, nil
}

// Connect implements transport.Backend.
func (b *Backend) Connect(ctx context.Context, address uint64) (transport.Connection, error) {
	dev, err := b.device()
	if err != nil {
		return nil, err
	}
	client, err := dev.Dial(ctx, ble.NewAddr(bledb.FormatAddress(address)))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return newConnection(client, b.logger), nil
}

// hostRadio is the single host adapter go-ble drives. The library exposes
// no power-state signal, so OnStateChanged never fires and the state is
// pinned to the open-time result.
type hostRadio struct {
	dev ble.Device
}

func (r *hostRadio) HasBluetooth() bool {
	return r.dev != nil
}

func (r *hostRadio) State() transport.RadioState {
	if r.dev == nil {
		return transport.RadioStateOff
	}
	return transport.RadioStateOn
}

func (r *hostRadio) OnStateChanged(fn func(transport.RadioState)) func() {
	return func() {}
}

// watcher adapts ble.Device.Scan to transport.Watcher. One Scan goroutine
// runs per Start; Stop cancels it and the stopped callback fires when the
// scan loop returns.
type watcher struct {
	dev      ble.Device
	filter   map[string]bool
	allowDup bool
	logger   *logrus.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	onReceived func(transport.AdvertisementEvent)
	onStopped  func(transport.WatcherStatus)
}

func (w *watcher) OnReceived(fn func(transport.AdvertisementEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReceived = fn
}

func (w *watcher) OnStopped(fn func(transport.WatcherStatus)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStopped = fn
}

func (w *watcher) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancel = cancel
	w.mu.Unlock()

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		err := w.dev.Scan(ctx, w.allowDup, w.handle)

		w.mu.Lock()
		w.cancel = nil
		stopped := w.onStopped
		w.mu.Unlock()

		status := transport.WatcherStopped
		if err != nil && ctx.Err() == nil {
			w.logger.WithField("error", NormalizeError(err)).Warn("Scan aborted")
			status = transport.WatcherAborted
		}
		if stopped != nil {
			stopped(status)
		}
	})
	return nil
}

func (w *watcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// handle converts one ble.Advertisement into transport events. The platform
// has already folded the scan response in, so the sighting is replayed as
// the primary PDU (classifying connectable) followed by a scan response
// carrying nothing new.
func (w *watcher) handle(adv ble.Advertisement) {
	w.mu.Lock()
	received := w.onReceived
	w.mu.Unlock()
	if received == nil {
		return
	}

	addr, err := parseAddr(adv.Addr().String())
	if err != nil {
		w.logger.WithFields(logrus.Fields{
			"addr":  adv.Addr().String(),
			"error": err,
		}).Debug("Dropping advertisement with unparseable address")
		return
	}

	uuids := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		uuids = append(uuids, u.String())
	}

	if len(w.filter) > 0 && !w.matches(uuids) {
		return
	}

	ev := transport.AdvertisementEvent{
		Address:      addr,
		RSSI:         int16(adv.RSSI()),
		LocalName:    adv.LocalName(),
		ServiceUUIDs: uuids,
	}
	if adv.Connectable() {
		ev.Kind = transport.AdvConnectableUndirected
	} else {
		ev.Kind = transport.AdvNonConnectableUndirected
	}
	if md := adv.ManufacturerData(); len(md) >= 2 {
		ev.Manufacturer = []transport.ManufacturerSection{{
			CompanyID: binary.LittleEndian.Uint16(md),
			Data:      append([]byte(nil), md[2:]...),
		}}
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnavailable {
		ev.Sections = []transport.DataSection{{
			Type: transport.SectionTxPowerLevel,
			Data: []byte{byte(tx)},
		}}
	}

	received(ev)
	received(transport.AdvertisementEvent{
		Address: addr,
		Kind:    transport.AdvScanResponse,
		RSSI:    int16(adv.RSSI()),
	})
}

func (w *watcher) matches(uuids []string) bool {
	for _, u := range uuids {
		if w.filter[bledb.NormalizeUUID(u)] {
			return true
		}
	}
	return false
}

// parseAddr converts a colon-separated MAC string into the raw 48-bit form.
func parseAddr(s string) (uint64, error) {
	hex := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ":", "")
	hex = strings.ReplaceAll(hex, "-", "")
	if len(hex) != 12 {
		return 0, fmt.Errorf("malformed address %q", s)
	}
	var addr uint64
	for _, r := range hex {
		var d uint64
		switch {
		case r >= '0' && r <= '9':
			d = uint64(r - '0')
		case r >= 'a' && r <= 'f':
			d = uint64(r-'a') + 10
		default:
			return 0, fmt.Errorf("malformed address %q", s)
		}
		addr = addr<<4 | d
	}
	return addr, nil
}
