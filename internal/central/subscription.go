package central

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/transport"
)

type subKey struct {
	device         string
	service        string
	characteristic string
}

// subscriptionEntry is one active notify/indicate subscription. Presence
// in the entry map means "currently subscribed".
type subscriptionEntry struct {
	char     transport.Characteristic
	listener transport.Listener
}

// SubscriptionManager tracks active subscriptions per characteristic and
// enforces idempotent toggling: redundant enables and disables never reach
// the transport layer.
type SubscriptionManager struct {
	mu      sync.Mutex
	entries map[subKey]*subscriptionEntry

	resolver *Resolver
	monitor  *RadioMonitor
	emitter  *Emitter
	logger   *logrus.Logger
}

// NewSubscriptionManager creates an empty subscription manager.
func NewSubscriptionManager(resolver *Resolver, monitor *RadioMonitor, emitter *Emitter, logger *logrus.Logger) *SubscriptionManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &SubscriptionManager{
		entries:  make(map[subKey]*subscriptionEntry),
		resolver: resolver,
		monitor:  monitor,
		emitter:  emitter,
		logger:   logger,
	}
}

// SetNotify enables or disables value notifications for a characteristic.
// A failed transport write never mutates the entry map: a failed enable
// leaves "not subscribed", a failed disable leaves the entry in place.
func (m *SubscriptionManager) SetNotify(ctx context.Context, id, serviceUUID, charUUID string, enable bool) error {
	char, err := m.resolver.ResolveCharacteristic(ctx, id, serviceUUID, charUUID)
	if err != nil {
		m.emitter.Emit(NotifyEvent{
			DeviceID:           id,
			ServiceUUID:        bledb.NormalizeUUID(serviceUUID),
			CharacteristicUUID: bledb.NormalizeUUID(charUUID),
			Err:                err,
		})
		return err
	}

	key := subKey{
		device:         id,
		service:        bledb.NormalizeUUID(serviceUUID),
		characteristic: bledb.NormalizeUUID(charUUID),
	}

	if enable {
		return m.enable(ctx, key, char)
	}
	return m.disable(ctx, key)
}

func (m *SubscriptionManager) enable(ctx context.Context, key subKey, char transport.Characteristic) error {
	m.mu.Lock()
	if _, exists := m.entries[key]; exists {
		m.mu.Unlock()
		// Idempotent: redundant enables are free, no transport call.
		m.emitSuccess(key, true)
		return nil
	}
	m.mu.Unlock()

	// The CCCD write happens outside the lock; success is signaled only
	// after it completes.
	status, err := char.WriteCCCD(ctx, transport.CCCDNotify)
	if e := statusError(key.device, "notification enable", status, err); e != nil {
		m.emitFailure(key, e)
		return e
	}

	listener := char.OnValueChanged(func(data []byte) {
		m.emitter.Emit(ReadEvent{
			DeviceID:           key.device,
			ServiceUUID:        key.service,
			CharacteristicUUID: key.characteristic,
			Data:               data,
			IsNotification:     true,
		})
	})

	m.mu.Lock()
	if _, exists := m.entries[key]; exists {
		// Lost an enable race: the winner's listener stays, ours detaches.
		m.mu.Unlock()
		listener.Detach()
		m.emitSuccess(key, true)
		return nil
	}
	m.entries[key] = &subscriptionEntry{char: char, listener: listener}
	m.mu.Unlock()

	m.monitor.Retain()

	m.logger.WithFields(logrus.Fields{
		"device":         key.device,
		"service":        key.service,
		"characteristic": key.characteristic,
	}).Info("Subscribed to characteristic notifications")

	m.emitSuccess(key, true)
	return nil
}

func (m *SubscriptionManager) disable(ctx context.Context, key subKey) error {
	m.mu.Lock()
	entry, exists := m.entries[key]
	m.mu.Unlock()

	if !exists {
		// Idempotent: disabling an inactive subscription is a no-op.
		m.emitSuccess(key, false)
		return nil
	}

	// Write first: a failed disable must leave the subscription intact.
	status, err := entry.char.WriteCCCD(ctx, transport.CCCDNone)
	if e := statusError(key.device, "notification disable", status, err); e != nil {
		m.emitFailure(key, e)
		return e
	}

	m.mu.Lock()
	current, owned := m.entries[key]
	owned = owned && current == entry
	if owned {
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if owned {
		// Only the call that removed the entry detaches the listener and
		// returns its liveness ref; a concurrent DropDevice may have done
		// both already.
		entry.listener.Detach()
		m.monitor.Release()
	}

	m.logger.WithFields(logrus.Fields{
		"device":         key.device,
		"service":        key.service,
		"characteristic": key.characteristic,
	}).Info("Unsubscribed from characteristic notifications")

	m.emitSuccess(key, false)
	return nil
}

// DropDevice discards every entry for the device without CCCD writes,
// used on disconnect when the link is going away regardless.
func (m *SubscriptionManager) DropDevice(id string) {
	m.mu.Lock()
	var dropped []*subscriptionEntry
	for key, entry := range m.entries {
		if key.device != id {
			continue
		}
		dropped = append(dropped, entry)
		delete(m.entries, key)
	}
	m.mu.Unlock()

	for _, entry := range dropped {
		entry.listener.Detach()
		m.monitor.Release()
	}

	if len(dropped) > 0 {
		m.logger.WithFields(logrus.Fields{
			"device":  id,
			"dropped": len(dropped),
		}).Debug("Dropped subscriptions on disconnect")
	}
}

// Active reports whether a subscription entry exists for the triple.
func (m *SubscriptionManager) Active(id, serviceUUID, charUUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[subKey{
		device:         id,
		service:        bledb.NormalizeUUID(serviceUUID),
		characteristic: bledb.NormalizeUUID(charUUID),
	}]
	return ok
}

func (m *SubscriptionManager) emitSuccess(key subKey, enabled bool) {
	m.emitter.Emit(NotifyEvent{
		DeviceID:           key.device,
		ServiceUUID:        key.service,
		CharacteristicUUID: key.characteristic,
		Enabled:            enabled,
	})
}

func (m *SubscriptionManager) emitFailure(key subKey, err error) {
	m.emitter.Emit(NotifyEvent{
		DeviceID:           key.device,
		ServiceUUID:        key.service,
		CharacteristicUUID: key.characteristic,
		Err:                err,
	})
}
