package testutils

import (
	"github.com/blekit/gattc/internal/transport"
)

// AdvBuilder assembles transport.AdvertisementEvent values for tests.
type AdvBuilder struct {
	ev transport.AdvertisementEvent
}

// NewAdvertisement starts a builder for the given address. The default
// kind is connectable undirected with an RSSI of -60.
func NewAdvertisement(address uint64) *AdvBuilder {
	return &AdvBuilder{ev: transport.AdvertisementEvent{
		Address: address,
		Kind:    transport.AdvConnectableUndirected,
		RSSI:    -60,
	}}
}

func (b *AdvBuilder) WithKind(kind transport.AdvertisementKind) *AdvBuilder {
	b.ev.Kind = kind
	return b
}

func (b *AdvBuilder) WithRSSI(rssi int16) *AdvBuilder {
	b.ev.RSSI = rssi
	return b
}

func (b *AdvBuilder) WithName(name string) *AdvBuilder {
	b.ev.LocalName = name
	return b
}

func (b *AdvBuilder) WithServiceUUIDs(uuids ...string) *AdvBuilder {
	b.ev.ServiceUUIDs = append(b.ev.ServiceUUIDs, uuids...)
	return b
}

func (b *AdvBuilder) WithManufacturer(companyID uint16, data []byte) *AdvBuilder {
	b.ev.Manufacturer = append(b.ev.Manufacturer, transport.ManufacturerSection{
		CompanyID: companyID,
		Data:      append([]byte(nil), data...),
	})
	return b
}

// WithTxPower encodes the level as a raw TX power data section. Negative
// levels are encoded in two's complement as they arrive off the radio.
func (b *AdvBuilder) WithTxPower(level int) *AdvBuilder {
	b.ev.Sections = append(b.ev.Sections, transport.DataSection{
		Type: transport.SectionTxPowerLevel,
		Data: []byte{byte(level)},
	})
	return b
}

func (b *AdvBuilder) WithSection(typ byte, data []byte) *AdvBuilder {
	b.ev.Sections = append(b.ev.Sections, transport.DataSection{Type: typ, Data: data})
	return b
}

// Build returns the assembled event.
func (b *AdvBuilder) Build() transport.AdvertisementEvent {
	return b.ev
}
