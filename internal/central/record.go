package central

import (
	"encoding/binary"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/transport"
)

type charKey struct {
	service        string
	characteristic string
}

type descKey struct {
	service        string
	characteristic string
	descriptor     string
}

// DeviceRecord is the authoritative per-peer state: identity, accumulated
// advertisement data, the connection handle while connected, and the three
// GATT resolution caches. A record is created on first advertisement
// observation and persists for the process lifetime.
type DeviceRecord struct {
	mu sync.RWMutex

	id               string
	address          uint64
	formattedAddress string
	addressType      string

	localName        *string
	connectable      *bool // derived once from the first PDU type, never revised
	serviceUUIDs     []string
	txPower          *int
	manufacturerData []byte
	rssi             int16
	lastSeen         time.Time

	conn transport.Connection

	// Resolution caches. Non-empty only while conn is present.
	services        *orderedmap.OrderedMap[string, transport.Service]
	characteristics *orderedmap.OrderedMap[charKey, transport.Characteristic]
	descriptors     *orderedmap.OrderedMap[descKey, transport.Descriptor]
}

func newDeviceRecord(address uint64, connectable *bool) *DeviceRecord {
	return &DeviceRecord{
		id:               bledb.DeviceID(address),
		address:          address,
		formattedAddress: bledb.FormatAddress(address),
		addressType:      bledb.AddressType(address),
		connectable:      connectable,
		services:         orderedmap.New[string, transport.Service](),
		characteristics:  orderedmap.New[charKey, transport.Characteristic](),
		descriptors:      orderedmap.New[descKey, transport.Descriptor](),
	}
}

func (d *DeviceRecord) ID() string          { return d.id }
func (d *DeviceRecord) RawAddress() uint64  { return d.address }
func (d *DeviceRecord) Address() string     { return d.formattedAddress }
func (d *DeviceRecord) AddressType() string { return d.addressType }

// LocalName returns the last advertised name, or nil if never seen.
func (d *DeviceRecord) LocalName() *string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.localName
}

// Connectable returns the tri-state connectable flag (nil = unknown).
func (d *DeviceRecord) Connectable() *bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectable
}

// ServiceUUIDs returns the accumulated service UUID list in first-seen order.
func (d *DeviceRecord) ServiceUUIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.serviceUUIDs))
	copy(out, d.serviceUUIDs)
	return out
}

func (d *DeviceRecord) TxPower() *int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.txPower
}

func (d *DeviceRecord) ManufacturerData() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manufacturerData
}

func (d *DeviceRecord) RSSI() int16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *DeviceRecord) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// Connection returns the live connection handle, or nil while disconnected.
func (d *DeviceRecord) Connection() transport.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}

// mergeAdvertisement folds one raw packet into the record:
// last-write-wins name, replaced manufacturer data (prefixed with its
// little-endian company identifier), append-only deduplicated service
// UUIDs, and a TX power level stored only when the packet carries one.
func (d *DeviceRecord) mergeAdvertisement(ev transport.AdvertisementEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rssi = ev.RSSI
	d.lastSeen = time.Now()

	if ev.LocalName != "" {
		name := ev.LocalName
		d.localName = &name
	}

	if len(ev.Manufacturer) > 0 {
		section := ev.Manufacturer[0]
		buf := make([]byte, 2+len(section.Data))
		binary.LittleEndian.PutUint16(buf, section.CompanyID)
		copy(buf[2:], section.Data)
		d.manufacturerData = buf
	}

	for _, raw := range ev.ServiceUUIDs {
		u := bledb.NormalizeUUID(raw)
		if u == "" || d.hasServiceUUID(u) {
			continue
		}
		d.serviceUUIDs = append(d.serviceUUIDs, u)
	}

	for _, sec := range ev.Sections {
		if sec.Type != transport.SectionTxPowerLevel || len(sec.Data) < 1 {
			continue
		}
		// Signed 8-bit; platform values >= 128 are two's-complement negatives.
		v := int(sec.Data[0])
		if v >= 128 {
			v -= 256
		}
		d.txPower = &v
	}
}

func (d *DeviceRecord) hasServiceUUID(uuid string) bool {
	for _, s := range d.serviceUUIDs {
		if s == uuid {
			return true
		}
	}
	return false
}

// advertisement returns the accumulated advertisement snapshot.
func (d *DeviceRecord) advertisement() Advertisement {
	d.mu.RLock()
	defer d.mu.RUnlock()

	uuids := make([]string, len(d.serviceUUIDs))
	copy(uuids, d.serviceUUIDs)

	return Advertisement{
		LocalName:        d.localName,
		TxPowerLevel:     d.txPower,
		ManufacturerData: d.manufacturerData,
		ServiceUUIDs:     uuids,
	}
}

// attach installs the connection handle after a successful connect.
func (d *DeviceRecord) attach(conn transport.Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn = conn
}

// detach clears the connection handle and all three caches atomically and
// returns the previous handle (nil if not connected). No partial-cache
// state is observable afterwards.
func (d *DeviceRecord) detach() transport.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn := d.conn
	d.conn = nil
	d.services = orderedmap.New[string, transport.Service]()
	d.characteristics = orderedmap.New[charKey, transport.Characteristic]()
	d.descriptors = orderedmap.New[descKey, transport.Descriptor]()
	return conn
}

func (d *DeviceRecord) cachedService(uuid string) (transport.Service, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.services.Get(uuid)
}

// storeService caches a resolved service. Dropped silently if the record
// has been disconnected in the meantime: caches are non-empty only while
// a connection handle is present.
func (d *DeviceRecord) storeService(uuid string, svc transport.Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	d.services.Set(uuid, svc)
}

func (d *DeviceRecord) cachedCharacteristic(key charKey) (transport.Characteristic, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.characteristics.Get(key)
}

func (d *DeviceRecord) storeCharacteristic(key charKey, char transport.Characteristic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	d.characteristics.Set(key, char)
}

func (d *DeviceRecord) cachedDescriptor(key descKey) (transport.Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.descriptors.Get(key)
}

func (d *DeviceRecord) storeDescriptor(key descKey, desc transport.Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	d.descriptors.Set(key, desc)
}

// cacheSizes reports the cache population, primarily for logging and tests.
func (d *DeviceRecord) cacheSizes() (services, characteristics, descriptors int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.services.Len(), d.characteristics.Len(), d.descriptors.Len()
}
