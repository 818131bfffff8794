// Package central implements the client side of a BLE stack: scanning for
// advertising peripherals, connecting to them, and navigating their GATT
// hierarchy to read, write and subscribe to data. All state lives in one
// Central instance so tests get clean isolation with fresh registries.
package central

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/transport"
)

// Central is the application-facing entry point, wiring the aggregator,
// registry, resolver, subscription manager, radio monitor and resource
// tracker over one transport backend.
type Central struct {
	backend transport.Backend
	logger  *logrus.Logger

	emitter    *Emitter
	tracker    *ResourceTracker
	registry   *Registry
	resolver   *Resolver
	subs       *SubscriptionManager
	monitor    *RadioMonitor
	aggregator *Aggregator

	scanMu   sync.Mutex
	watcher  transport.Watcher
	scanning bool
}

// Options tunes Central construction.
type Options struct {
	EventBuffer int
}

// New creates a Central over the given transport backend.
func New(backend transport.Backend, logger *logrus.Logger, opts *Options) *Central {
	if logger == nil {
		logger = logrus.New()
	}

	bufSize := DefaultEventBuffer
	if opts != nil && opts.EventBuffer > 0 {
		bufSize = opts.EventBuffer
	}

	emitter := NewEmitter(bufSize, logger)
	tracker := NewResourceTracker(logger)
	registry := NewRegistry(backend, tracker, emitter, logger)
	resolver := NewResolver(registry, tracker, logger)
	monitor := NewRadioMonitor(emitter, logger)
	subs := NewSubscriptionManager(resolver, monitor, emitter, logger)
	aggregator := NewAggregator(registry, emitter, logger)

	return &Central{
		backend:    backend,
		logger:     logger,
		emitter:    emitter,
		tracker:    tracker,
		registry:   registry,
		resolver:   resolver,
		subs:       subs,
		monitor:    monitor,
		aggregator: aggregator,
	}
}

// Start kicks off the initial radio enumeration. Events begin flowing on
// the stream returned by Events.
func (c *Central) Start(ctx context.Context) {
	c.monitor.Start(ctx, c.backend)
}

// Stop tears down scanning and the radio monitor, then terminates the
// event stream so ranging consumers exit.
func (c *Central) Stop() {
	_ = c.StopScanning()
	c.monitor.Stop()
	c.emitter.Close()
}

// Events returns the application event stream.
func (c *Central) Events() <-chan Event {
	return c.emitter.C()
}

// RadioState returns the last reported adapter state.
func (c *Central) RadioState() RadioState {
	return c.monitor.State()
}

// Registry exposes the device table for inspection (CLI listing, tests).
func (c *Central) Registry() *Registry {
	return c.registry
}

// StartScanning starts the advertisement watcher. Starting an already
// started scan is a no-op.
func (c *Central) StartScanning(serviceUUIDs []string, allowDuplicates bool) error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	if c.scanning {
		return nil
	}

	w, err := c.backend.NewWatcher(bledb.NormalizeUUIDs(serviceUUIDs), allowDuplicates)
	if err != nil {
		return transportErr("failed to create advertisement watcher", err)
	}

	w.OnReceived(c.aggregator.OnAdvertisementReceived)
	w.OnStopped(func(status transport.WatcherStatus) {
		c.scanMu.Lock()
		c.scanning = false
		c.watcher = nil
		c.scanMu.Unlock()

		if status == transport.WatcherAborted {
			c.logger.Warn("Advertisement watcher aborted")
		}
		c.emitter.Emit(ScanStopEvent{})
	})

	if err := w.Start(); err != nil {
		return transportErr("failed to start advertisement watcher", err)
	}

	c.watcher = w
	c.scanning = true
	c.logger.WithFields(logrus.Fields{
		"filter":           serviceUUIDs,
		"allow_duplicates": allowDuplicates,
	}).Info("Scanning started")
	return nil
}

// StopScanning stops the advertisement watcher. Stopping an already
// stopped scan is a no-op.
func (c *Central) StopScanning() error {
	c.scanMu.Lock()
	w := c.watcher
	scanning := c.scanning
	c.scanMu.Unlock()

	if !scanning || w == nil {
		return nil
	}
	if err := w.Stop(); err != nil {
		return transportErr("failed to stop advertisement watcher", err)
	}
	return nil
}

// Scanning reports whether a scan is in progress.
func (c *Central) Scanning() bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	return c.scanning
}

// Connect resolves a connection handle for the device.
func (c *Central) Connect(ctx context.Context, id string) error {
	return c.registry.Connect(ctx, id)
}

// Disconnect drops the device's subscriptions, clears its handle and
// caches, and releases every tracked transport resource. Safe to invoke
// concurrently with in-flight operations on the same device: those observe
// InvalidState or a terminal transport failure.
func (c *Central) Disconnect(id string) error {
	c.subs.DropDevice(id)
	return c.registry.Disconnect(id)
}

// DiscoverServices re-enumerates the device's services over the air.
func (c *Central) DiscoverServices(ctx context.Context, id string, filter []string) ([]ServiceInfo, error) {
	return c.registry.DiscoverServices(ctx, id, filter)
}

// DiscoverIncludedServices enumerates services included by the named
// service, uncached, with an optional UUID allow-list.
func (c *Central) DiscoverIncludedServices(ctx context.Context, id, serviceUUID string, filter []string) ([]ServiceInfo, error) {
	su := bledb.NormalizeUUID(serviceUUID)

	svc, err := c.resolver.ResolveService(ctx, id, serviceUUID)
	if err != nil {
		c.emitter.Emit(IncludedServicesDiscoverEvent{DeviceID: id, ServiceUUID: su, Err: err})
		return nil, err
	}

	included, status, err := svc.Included(ctx, transport.CacheModeUncached)
	if e := statusError(id, "included service discovery", status, err); e != nil {
		c.emitter.Emit(IncludedServicesDiscoverEvent{DeviceID: id, ServiceUUID: su, Err: e})
		return nil, e
	}

	allow := make(map[string]bool, len(filter))
	for _, f := range filter {
		allow[bledb.NormalizeUUID(f)] = true
	}

	infos := make([]ServiceInfo, 0, len(included))
	for _, s := range included {
		c.tracker.Track(id, s)
		u := bledb.NormalizeUUID(s.UUID())
		if len(allow) > 0 && !allow[u] {
			continue
		}
		infos = append(infos, ServiceInfo{UUID: u, KnownName: bledb.LookupService(u)})
	}

	c.emitter.Emit(IncludedServicesDiscoverEvent{DeviceID: id, ServiceUUID: su, Included: infos})
	return infos, nil
}

// DiscoverCharacteristics enumerates the service's characteristics over
// the air (uncached) and decodes their property bitmasks.
func (c *Central) DiscoverCharacteristics(ctx context.Context, id, serviceUUID string, filter []string) ([]CharacteristicInfo, error) {
	su := bledb.NormalizeUUID(serviceUUID)

	svc, err := c.resolver.ResolveService(ctx, id, serviceUUID)
	if err != nil {
		c.emitter.Emit(CharacteristicsDiscoverEvent{DeviceID: id, ServiceUUID: su, Err: err})
		return nil, err
	}

	chars, status, err := svc.Characteristics(ctx, transport.CacheModeUncached)
	if e := statusError(id, "characteristic discovery", status, err); e != nil {
		c.emitter.Emit(CharacteristicsDiscoverEvent{DeviceID: id, ServiceUUID: su, Err: e})
		return nil, e
	}

	allow := make(map[string]bool, len(filter))
	for _, f := range filter {
		allow[bledb.NormalizeUUID(f)] = true
	}

	infos := make([]CharacteristicInfo, 0, len(chars))
	for _, ch := range chars {
		c.tracker.Track(id, ch)
		u := bledb.NormalizeUUID(ch.UUID())
		if len(allow) > 0 && !allow[u] {
			continue
		}
		infos = append(infos, CharacteristicInfo{
			UUID:       u,
			KnownName:  bledb.LookupCharacteristic(u),
			Properties: DecodeProperties(ch.Properties()),
		})
	}

	c.emitter.Emit(CharacteristicsDiscoverEvent{DeviceID: id, ServiceUUID: su, Characteristics: infos})
	return infos, nil
}

// DiscoverDescriptors enumerates the characteristic's descriptors over the
// air (uncached).
func (c *Central) DiscoverDescriptors(ctx context.Context, id, serviceUUID, charUUID string) ([]DescriptorInfo, error) {
	su := bledb.NormalizeUUID(serviceUUID)
	cu := bledb.NormalizeUUID(charUUID)

	char, err := c.resolver.ResolveCharacteristic(ctx, id, serviceUUID, charUUID)
	if err != nil {
		c.emitter.Emit(DescriptorsDiscoverEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: err})
		return nil, err
	}

	descs, status, err := char.Descriptors(ctx, transport.CacheModeUncached)
	if e := statusError(id, "descriptor discovery", status, err); e != nil {
		c.emitter.Emit(DescriptorsDiscoverEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: e})
		return nil, e
	}

	infos := make([]DescriptorInfo, 0, len(descs))
	for _, d := range descs {
		c.tracker.Track(id, d)
		u := bledb.NormalizeUUID(d.UUID())
		infos = append(infos, DescriptorInfo{UUID: u, KnownName: bledb.LookupDescriptor(u)})
	}

	c.emitter.Emit(DescriptorsDiscoverEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Descriptors: infos})
	return infos, nil
}

// ReadCharacteristic reads the characteristic value. The read event is
// tagged as a direct read response, not a notification.
func (c *Central) ReadCharacteristic(ctx context.Context, id, serviceUUID, charUUID string) ([]byte, error) {
	su := bledb.NormalizeUUID(serviceUUID)
	cu := bledb.NormalizeUUID(charUUID)

	char, err := c.resolver.ResolveCharacteristic(ctx, id, serviceUUID, charUUID)
	if err != nil {
		c.emitter.Emit(ReadEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: err})
		return nil, err
	}

	data, status, err := char.Read(ctx)
	if e := statusError(id, "characteristic read", status, err); e != nil {
		c.emitter.Emit(ReadEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: e})
		return nil, e
	}

	c.emitter.Emit(ReadEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Data: data})
	return data, nil
}

// WriteCharacteristic writes the characteristic value. When
// withoutResponse is set the write is fire-and-forget: a transport failure
// is logged and suppressed rather than surfaced.
func (c *Central) WriteCharacteristic(ctx context.Context, id, serviceUUID, charUUID string, data []byte, withoutResponse bool) error {
	su := bledb.NormalizeUUID(serviceUUID)
	cu := bledb.NormalizeUUID(charUUID)

	char, err := c.resolver.ResolveCharacteristic(ctx, id, serviceUUID, charUUID)
	if err != nil {
		c.emitter.Emit(WriteEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: err})
		return err
	}

	status, err := char.Write(ctx, data, !withoutResponse)
	if e := statusError(id, "characteristic write", status, err); e != nil {
		if withoutResponse {
			c.logger.WithFields(logrus.Fields{
				"device":         id,
				"characteristic": cu,
				"error":          e,
			}).Debug("Fire-and-forget write failed, suppressed")
			c.emitter.Emit(WriteEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu})
			return nil
		}
		c.emitter.Emit(WriteEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, Err: e})
		return e
	}

	c.emitter.Emit(WriteEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu})
	return nil
}

// SetNotify enables or disables notifications for a characteristic with
// idempotent semantics.
func (c *Central) SetNotify(ctx context.Context, id, serviceUUID, charUUID string, enable bool) error {
	return c.subs.SetNotify(ctx, id, serviceUUID, charUUID, enable)
}

// ReadDescriptor reads a descriptor value.
func (c *Central) ReadDescriptor(ctx context.Context, id, serviceUUID, charUUID, descriptorUUID string) ([]byte, error) {
	su := bledb.NormalizeUUID(serviceUUID)
	cu := bledb.NormalizeUUID(charUUID)
	du := bledb.NormalizeUUID(descriptorUUID)

	desc, err := c.resolver.ResolveDescriptor(ctx, id, serviceUUID, charUUID, descriptorUUID)
	if err != nil {
		c.emitter.Emit(ReadValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du, Err: err})
		return nil, err
	}

	data, status, err := desc.Read(ctx)
	if e := statusError(id, "descriptor read", status, err); e != nil {
		c.emitter.Emit(ReadValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du, Err: e})
		return nil, e
	}

	c.emitter.Emit(ReadValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du, Data: data})
	return data, nil
}

// WriteDescriptor writes a descriptor value.
func (c *Central) WriteDescriptor(ctx context.Context, id, serviceUUID, charUUID, descriptorUUID string, data []byte) error {
	su := bledb.NormalizeUUID(serviceUUID)
	cu := bledb.NormalizeUUID(charUUID)
	du := bledb.NormalizeUUID(descriptorUUID)

	desc, err := c.resolver.ResolveDescriptor(ctx, id, serviceUUID, charUUID, descriptorUUID)
	if err != nil {
		c.emitter.Emit(WriteValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du, Err: err})
		return err
	}

	status, err := desc.Write(ctx, data)
	if e := statusError(id, "descriptor write", status, err); e != nil {
		c.emitter.Emit(WriteValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du, Err: e})
		return e
	}

	c.emitter.Emit(WriteValueEvent{DeviceID: id, ServiceUUID: su, CharacteristicUUID: cu, DescriptorUUID: du})
	return nil
}

// UpdateRSSI is a stub that always reports 0. The underlying platform
// offers no per-connection RSSI query, so the fixed value is preserved.
func (c *Central) UpdateRSSI(id string) (int16, error) {
	if _, err := c.registry.Get(id); err != nil {
		return 0, err
	}
	c.emitter.Emit(RSSIUpdateEvent{DeviceID: id, RSSI: 0})
	return 0, nil
}

// Broadcast has no defined behavior for this core.
func (c *Central) Broadcast(id, serviceUUID, charUUID string, enable bool) error {
	return unsupportedf("broadcast is not supported")
}

// ReadHandle has no defined behavior for this core.
func (c *Central) ReadHandle(id string, handle uint16) ([]byte, error) {
	return nil, unsupportedf("handle-based read is not supported")
}

// WriteHandle has no defined behavior for this core.
func (c *Central) WriteHandle(id string, handle uint16, data []byte, withoutResponse bool) error {
	return unsupportedf("handle-based write is not supported")
}
