package central

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/ringchan"
)

// RadioState is the adapter power state as reported to the application.
type RadioState string

const (
	RadioUnsupported RadioState = "unsupported"
	RadioUnknown     RadioState = "unknown"
	RadioPoweredOn   RadioState = "poweredOn"
	RadioPoweredOff  RadioState = "poweredOff"
)

// Advertisement is the accumulated advertisement snapshot carried by a
// discovery event.
type Advertisement struct {
	LocalName        *string
	TxPowerLevel     *int
	ManufacturerData []byte
	ServiceUUIDs     []string
}

// Event is the application-boundary event stream element. One concrete
// struct exists per event name; every operation event carries either a
// success payload or an Err, never both.
type Event interface {
	eventName() string
}

type StateChangeEvent struct {
	State RadioState
}

type DiscoverEvent struct {
	DeviceID    string
	Address     string
	AddressType string
	Connectable *bool // nil while the PDU type never classified it
	Advert      Advertisement
	RSSI        int16
}

type ConnectEvent struct {
	DeviceID string
	Err      error
}

type DisconnectEvent struct {
	DeviceID string
}

type ServicesDiscoverEvent struct {
	DeviceID string
	Services []ServiceInfo
	Err      error
}

type IncludedServicesDiscoverEvent struct {
	DeviceID    string
	ServiceUUID string
	Included    []ServiceInfo
	Err         error
}

type CharacteristicsDiscoverEvent struct {
	DeviceID        string
	ServiceUUID     string
	Characteristics []CharacteristicInfo
	Err             error
}

type DescriptorsDiscoverEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Descriptors        []DescriptorInfo
	Err                error
}

type ReadEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
	Err                error
	IsNotification     bool
}

type WriteEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Err                error
}

type NotifyEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Enabled            bool
	Err                error
}

type ReadValueEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	DescriptorUUID     string
	Data               []byte
	Err                error
}

type WriteValueEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	DescriptorUUID     string
	Err                error
}

type RSSIUpdateEvent struct {
	DeviceID string
	RSSI     int16
}

type ScanStopEvent struct{}

func (StateChangeEvent) eventName() string              { return "stateChange" }
func (DiscoverEvent) eventName() string                 { return "discover" }
func (ConnectEvent) eventName() string                  { return "connect" }
func (DisconnectEvent) eventName() string               { return "disconnect" }
func (ServicesDiscoverEvent) eventName() string         { return "servicesDiscover" }
func (IncludedServicesDiscoverEvent) eventName() string { return "includedServicesDiscover" }
func (CharacteristicsDiscoverEvent) eventName() string  { return "characteristicsDiscover" }
func (DescriptorsDiscoverEvent) eventName() string      { return "descriptorsDiscover" }
func (ReadEvent) eventName() string                     { return "read" }
func (WriteEvent) eventName() string                    { return "write" }
func (NotifyEvent) eventName() string                   { return "notify" }
func (ReadValueEvent) eventName() string                { return "readValue" }
func (WriteValueEvent) eventName() string               { return "writeValue" }
func (RSSIUpdateEvent) eventName() string               { return "rssiUpdate" }
func (ScanStopEvent) eventName() string                 { return "scanStop" }

// ServiceInfo is a discovered service as presented to the application.
type ServiceInfo struct {
	UUID      string
	KnownName string
}

// CharacteristicInfo is a discovered characteristic with its decoded
// capability set.
type CharacteristicInfo struct {
	UUID       string
	KnownName  string
	Properties Capabilities
}

// DescriptorInfo is a discovered descriptor.
type DescriptorInfo struct {
	UUID      string
	KnownName string
}

// DefaultEventBuffer is the default capacity of the application event ring.
const DefaultEventBuffer = 128

// Emitter publishes application events over a bounded ring channel so a
// slow consumer never stalls the radio event pump.
type Emitter struct {
	ring   *ringchan.RingChannel[Event]
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an Emitter with the given buffer capacity.
func NewEmitter(capacity int, logger *logrus.Logger) *Emitter {
	if capacity <= 0 {
		capacity = DefaultEventBuffer
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Emitter{
		ring:   ringchan.New[Event](capacity),
		logger: logger,
	}
}

// Emit publishes one event, dropping the oldest buffered event when full.
// Events arriving after Close are discarded; transport callbacks may still
// fire asynchronously during teardown.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.WithField("event", ev.eventName()).Debug("Event stream closed, event discarded")
		return
	}
	if dropped := e.ring.ForceSend(ev); dropped {
		e.logger.WithField("event", ev.eventName()).Warn("Event buffer full, dropped oldest event")
	}
}

// C returns the read side of the event stream.
func (e *Emitter) C() <-chan Event {
	return e.ring.C()
}

// Close terminates the event stream so ranging consumers unblock. Safe to
// call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.ring.Close()
}
