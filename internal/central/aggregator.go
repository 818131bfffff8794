package central

import (
	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/transport"
)

// Aggregator folds the raw advertisement stream into per-device records
// and emits the discovery event once the scan response for a scan cycle
// has arrived. The scan response typically carries the richer payload, so
// deferring until then avoids duplicate or partial discovery events.
type Aggregator struct {
	registry *Registry
	emitter  *Emitter
	logger   *logrus.Logger
}

// NewAggregator wires the aggregator to its registry and event sink.
func NewAggregator(registry *Registry, emitter *Emitter, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		registry: registry,
		emitter:  emitter,
		logger:   logger,
	}
}

// classifyConnectable maps a PDU type to the tri-state connectable flag.
// Unknown types (including the scan response) classify nothing.
func classifyConnectable(kind transport.AdvertisementKind) *bool {
	t, f := true, false
	switch kind {
	case transport.AdvConnectableUndirected, transport.AdvConnectableDirected:
		return &t
	case transport.AdvScannableUndirected, transport.AdvNonConnectableUndirected:
		return &f
	default:
		return nil
	}
}

// OnAdvertisementReceived consumes one raw packet: it creates or updates
// the device record and, only for scan-response packets, emits the
// externally visible discovery event with the fully merged snapshot.
func (a *Aggregator) OnAdvertisementReceived(ev transport.AdvertisementEvent) {
	rec, created := a.registry.ensure(ev.Address, classifyConnectable(ev.Kind))
	rec.mergeAdvertisement(ev)

	if created {
		a.logger.WithFields(logrus.Fields{
			"device":  rec.ID(),
			"address": rec.Address(),
			"rssi":    ev.RSSI,
		}).Debug("Observed new device")
	}

	if ev.Kind != transport.AdvScanResponse {
		return
	}

	a.emitter.Emit(DiscoverEvent{
		DeviceID:    rec.ID(),
		Address:     rec.Address(),
		AddressType: rec.AddressType(),
		Connectable: rec.Connectable(),
		Advert:      rec.advertisement(),
		RSSI:        ev.RSSI,
	})
}
