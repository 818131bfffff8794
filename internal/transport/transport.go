// Package transport defines the boundary with the OS Bluetooth layer:
// radio enumeration, advertisement watching, connect-by-address and GATT
// PDU exchange. The central core consumes these interfaces only; concrete
// drivers live in subpackages.
package transport

import "context"

// Status is the result code a GATT operation reports alongside its payload.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnreachable
	StatusProtocolError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusProtocolError:
		return "protocolError"
	default:
		return "unknown"
	}
}

// CacheMode selects whether a GATT enumeration may be answered from the
// platform's last-known object graph (cached) or must re-enumerate over
// the air (uncached).
type CacheMode int

const (
	CacheModeCached CacheMode = iota
	CacheModeUncached
)

func (m CacheMode) String() string {
	if m == CacheModeUncached {
		return "uncached"
	}
	return "cached"
}

// RadioState is the platform adapter power state.
type RadioState int

const (
	RadioStateUnknown RadioState = iota
	RadioStateOn
	RadioStateOff
	RadioStateDisabled
)

// Releasable is a transport-level handle that must be explicitly released
// when its owning device disconnects.
type Releasable interface {
	Release()
}

// Radio is one platform radio handle.
type Radio interface {
	HasBluetooth() bool
	State() RadioState
	// OnStateChanged registers a state-change callback and returns a
	// cancel function that deregisters it.
	OnStateChanged(fn func(RadioState)) (cancel func())
}

// AdvertisementKind is the PDU type of a received advertisement.
type AdvertisementKind int

const (
	AdvConnectableUndirected AdvertisementKind = iota
	AdvConnectableDirected
	AdvScannableUndirected
	AdvNonConnectableUndirected
	AdvScanResponse
)

// ManufacturerSection is one manufacturer-specific data section with its
// assigned company identifier.
type ManufacturerSection struct {
	CompanyID uint16
	Data      []byte
}

// DataSection is one raw advertisement data section (AD structure).
type DataSection struct {
	Type byte
	Data []byte
}

// SectionTxPowerLevel is the AD type carrying the TX power level.
const SectionTxPowerLevel byte = 0x0a

// AdvertisementEvent is one raw advertisement packet as delivered by the
// watcher.
type AdvertisementEvent struct {
	Address      uint64
	Kind         AdvertisementKind
	RSSI         int16
	LocalName    string // empty when the packet carries no name section
	ServiceUUIDs []string
	Manufacturer []ManufacturerSection
	Sections     []DataSection
}

// WatcherStatus reports the advertisement watcher lifecycle.
type WatcherStatus int

const (
	WatcherCreated WatcherStatus = iota
	WatcherStarted
	WatcherStopping
	WatcherStopped
	WatcherAborted
)

// Watcher delivers advertisement events from the radio.
type Watcher interface {
	Start() error
	Stop() error
	OnReceived(fn func(AdvertisementEvent))
	OnStopped(fn func(WatcherStatus))
}

// CCCDValue is the client-configuration value written to enable or disable
// server-initiated updates.
type CCCDValue int

const (
	CCCDNone CCCDValue = iota
	CCCDNotify
	CCCDIndicate
)

// Properties is the GATT characteristic property bitmask as reported by
// discovery.
type Properties uint32

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropAuthenticatedSignedWrites
	PropExtendedProperties
)

// Listener is an active value-changed registration on a characteristic.
type Listener interface {
	Detach()
}

// Connection is a live link to one peer.
type Connection interface {
	Releasable
	Services(ctx context.Context, mode CacheMode) ([]Service, Status, error)
}

// Service is a remote GATT service handle.
type Service interface {
	Releasable
	UUID() string
	Characteristics(ctx context.Context, mode CacheMode) ([]Characteristic, Status, error)
	Included(ctx context.Context, mode CacheMode) ([]Service, Status, error)
}

// Characteristic is a remote GATT characteristic handle.
type Characteristic interface {
	Releasable
	UUID() string
	Properties() Properties
	Descriptors(ctx context.Context, mode CacheMode) ([]Descriptor, Status, error)
	Read(ctx context.Context) ([]byte, Status, error)
	Write(ctx context.Context, data []byte, withResponse bool) (Status, error)
	// WriteCCCD writes the client-configuration descriptor.
	WriteCCCD(ctx context.Context, value CCCDValue) (Status, error)
	// OnValueChanged registers a server-initiated value listener.
	OnValueChanged(fn func(data []byte)) Listener
}

// Descriptor is a remote GATT descriptor handle.
type Descriptor interface {
	Releasable
	UUID() string
	Read(ctx context.Context) ([]byte, Status, error)
	Write(ctx context.Context, data []byte) (Status, error)
}

// Backend is the full transport surface the central core is built on.
type Backend interface {
	// Radios enumerates platform radios; the core selects the first with
	// Bluetooth capability.
	Radios(ctx context.Context) ([]Radio, error)
	// NewWatcher creates an advertisement watcher. An empty serviceUUIDs
	// slice means no hardware-level filter.
	NewWatcher(serviceUUIDs []string, allowDuplicates bool) (Watcher, error)
	// Connect resolves a connection handle from a raw 48-bit address.
	Connect(ctx context.Context, address uint64) (Connection, error)
}
