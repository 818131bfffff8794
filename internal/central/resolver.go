package central

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/transport"
)

// Resolver provides cached, on-demand resolution of services,
// characteristics and descriptors. Resolution uses the transport's cached
// query mode so repeated read/write calls stay cheap; the top-level
// discovery operations always use uncached mode instead.
//
// Concurrent resolutions of the same unresolved key are not deduplicated:
// each issues its own cached-mode query and both race to populate the same
// cache slot, which is harmless because the transport returns logically
// equal handles for the same UUID. Every matched handle is tracked, so a
// lost race never leaks.
type Resolver struct {
	registry *Registry
	tracker  *ResourceTracker
	logger   *logrus.Logger
}

// NewResolver wires the resolver to the registry and tracker.
func NewResolver(registry *Registry, tracker *ResourceTracker, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		registry: registry,
		tracker:  tracker,
		logger:   logger,
	}
}

// connected returns the record and its live connection, or the
// NotFound/InvalidState error the operation must surface.
func (r *Resolver) connected(id string) (*DeviceRecord, transport.Connection, error) {
	rec, err := r.registry.Get(id)
	if err != nil {
		return nil, nil, err
	}
	conn := rec.Connection()
	if conn == nil {
		return nil, nil, invalidStatef("device %s is not connected", id)
	}
	return rec, conn, nil
}

// ResolveService returns the cached service or performs a cached-mode
// query for all services and caches the match.
func (r *Resolver) ResolveService(ctx context.Context, id, serviceUUID string) (transport.Service, error) {
	rec, conn, err := r.connected(id)
	if err != nil {
		return nil, err
	}

	su := bledb.NormalizeUUID(serviceUUID)
	if svc, ok := rec.cachedService(su); ok {
		return svc, nil
	}

	svcs, status, err := conn.Services(ctx, transport.CacheModeCached)
	if e := statusError(id, "service resolution", status, err); e != nil {
		return nil, e
	}

	for _, s := range svcs {
		if bledb.NormalizeUUID(s.UUID()) != su {
			continue
		}
		r.tracker.Track(id, s)
		rec.storeService(su, s)
		return s, nil
	}

	return nil, notFoundf("service %q not found on device %s", serviceUUID, id)
}

// ResolveCharacteristic resolves the service first, then locates the
// characteristic via a cached-mode query, cached by the compound
// (service, characteristic) key.
func (r *Resolver) ResolveCharacteristic(ctx context.Context, id, serviceUUID, charUUID string) (transport.Characteristic, error) {
	rec, _, err := r.connected(id)
	if err != nil {
		return nil, err
	}

	key := charKey{
		service:        bledb.NormalizeUUID(serviceUUID),
		characteristic: bledb.NormalizeUUID(charUUID),
	}
	if char, ok := rec.cachedCharacteristic(key); ok {
		return char, nil
	}

	svc, err := r.ResolveService(ctx, id, serviceUUID)
	if err != nil {
		return nil, err
	}

	chars, status, err := svc.Characteristics(ctx, transport.CacheModeCached)
	if e := statusError(id, "characteristic resolution", status, err); e != nil {
		return nil, e
	}

	for _, c := range chars {
		if bledb.NormalizeUUID(c.UUID()) != key.characteristic {
			continue
		}
		r.tracker.Track(id, c)
		rec.storeCharacteristic(key, c)
		return c, nil
	}

	return nil, notFoundf("characteristic %q not found in service %q on device %s", charUUID, serviceUUID, id)
}

// ResolveDescriptor resolves the characteristic first, then locates the
// descriptor via a cached-mode query, cached by the compound
// (service, characteristic, descriptor) key.
func (r *Resolver) ResolveDescriptor(ctx context.Context, id, serviceUUID, charUUID, descriptorUUID string) (transport.Descriptor, error) {
	rec, _, err := r.connected(id)
	if err != nil {
		return nil, err
	}

	key := descKey{
		service:        bledb.NormalizeUUID(serviceUUID),
		characteristic: bledb.NormalizeUUID(charUUID),
		descriptor:     bledb.NormalizeUUID(descriptorUUID),
	}
	if desc, ok := rec.cachedDescriptor(key); ok {
		return desc, nil
	}

	char, err := r.ResolveCharacteristic(ctx, id, serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}

	descs, status, err := char.Descriptors(ctx, transport.CacheModeCached)
	if e := statusError(id, "descriptor resolution", status, err); e != nil {
		return nil, e
	}

	for _, d := range descs {
		if bledb.NormalizeUUID(d.UUID()) != key.descriptor {
			continue
		}
		r.tracker.Track(id, d)
		rec.storeDescriptor(key, d)
		return d, nil
	}

	r.logger.WithFields(logrus.Fields{
		"device":         id,
		"service":        key.service,
		"characteristic": key.characteristic,
		"descriptor":     key.descriptor,
	}).Debug("Descriptor not present after cached query")

	return nil, notFoundf("descriptor %q not found in characteristic %q on device %s", descriptorUUID, charUUID, id)
}
