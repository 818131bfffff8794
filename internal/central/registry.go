package central

import (
	"context"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/transport"
)

// Registry owns the authoritative table of known devices keyed by their
// address-derived identifier, along with their connection handles and
// GATT caches. Records are never removed; re-discovery updates the
// existing record.
type Registry struct {
	devices *hashmap.Map[string, *DeviceRecord]
	tracker *ResourceTracker
	backend transport.Backend
	emitter *Emitter
	logger  *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(backend transport.Backend, tracker *ResourceTracker, emitter *Emitter, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		devices: hashmap.New[string, *DeviceRecord](),
		tracker: tracker,
		backend: backend,
		emitter: emitter,
		logger:  logger,
	}
}

// ensure returns the record for the address, creating it with default
// fields on first observation. The connectable flag is derived once at
// creation and not revised afterwards.
func (r *Registry) ensure(address uint64, connectable *bool) (*DeviceRecord, bool) {
	id := bledb.DeviceID(address)
	if rec, ok := r.devices.Get(id); ok {
		return rec, false
	}
	rec, loaded := r.devices.GetOrInsert(id, newDeviceRecord(address, connectable))
	return rec, !loaded
}

// Get returns the record for the identifier or a NotFound error.
func (r *Registry) Get(id string) (*DeviceRecord, error) {
	rec, ok := r.devices.Get(id)
	if !ok {
		return nil, notFoundf("unknown device %q", id)
	}
	return rec, nil
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	return r.devices.Len()
}

// Range visits every known record.
func (r *Registry) Range(fn func(*DeviceRecord) bool) {
	r.devices.Range(func(_ string, rec *DeviceRecord) bool {
		return fn(rec)
	})
}

// Connect resolves a connection handle for the device. A device whose
// connectable flag is false fails with InvalidState before any transport
// call. Transport failures are both returned and signaled through the
// connect event; the record is left without a handle.
func (r *Registry) Connect(ctx context.Context, id string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}

	if c := rec.Connectable(); c != nil && !*c {
		return invalidStatef("device %s is not connectable", id)
	}

	if rec.Connection() != nil {
		// Redundant connects are free: report success on the event stream.
		r.emitter.Emit(ConnectEvent{DeviceID: id})
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"device":  id,
		"address": rec.Address(),
	}).Info("Connecting to device...")

	conn, err := r.backend.Connect(ctx, rec.RawAddress())
	if err != nil {
		terr := transportErr(fmt.Sprintf("failed to connect to device %s", id), err)
		r.emitter.Emit(ConnectEvent{DeviceID: id, Err: terr})
		return terr
	}

	rec.attach(conn)
	r.tracker.Track(id, conn)
	r.emitter.Emit(ConnectEvent{DeviceID: id})

	r.logger.WithField("device", id).Info("Device connected")
	return nil
}

// Disconnect clears the connection handle and all three caches atomically,
// then releases every tracked resource for the identifier. A disconnect on
// a device that is not connected is a no-op. Never fails for a known id.
func (r *Registry) Disconnect(id string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}

	conn := rec.detach()
	if conn == nil {
		r.logger.WithField("device", id).Debug("Disconnect called but not connected")
		return nil
	}

	// The connection handle itself is tracked, so releasing the tracked
	// set also tears down the link.
	r.tracker.ReleaseAll(id)
	r.emitter.Emit(DisconnectEvent{DeviceID: id})

	r.logger.WithField("device", id).Info("Device disconnected")
	return nil
}

// DiscoverServices performs an uncached service enumeration, tracks each
// returned handle and applies the optional UUID allow-list. It never
// touches the single-service resolution cache.
func (r *Registry) DiscoverServices(ctx context.Context, id string, filter []string) ([]ServiceInfo, error) {
	rec, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	conn := rec.Connection()
	if conn == nil {
		return nil, invalidStatef("device %s is not connected", id)
	}

	svcs, status, err := conn.Services(ctx, transport.CacheModeUncached)
	if e := statusError(id, "service discovery", status, err); e != nil {
		r.emitter.Emit(ServicesDiscoverEvent{DeviceID: id, Err: e})
		return nil, e
	}

	allow := make(map[string]bool, len(filter))
	for _, f := range filter {
		allow[bledb.NormalizeUUID(f)] = true
	}

	infos := make([]ServiceInfo, 0, len(svcs))
	for _, s := range svcs {
		// Every returned handle is a disposable resource, filtered or not.
		r.tracker.Track(id, s)

		u := bledb.NormalizeUUID(s.UUID())
		if len(allow) > 0 && !allow[u] {
			continue
		}
		infos = append(infos, ServiceInfo{UUID: u, KnownName: bledb.LookupService(u)})
	}

	r.emitter.Emit(ServicesDiscoverEvent{DeviceID: id, Services: infos})
	return infos, nil
}
