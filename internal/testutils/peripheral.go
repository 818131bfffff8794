package testutils

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blekit/gattc/internal/transport"
)

// FakePeripheral is the GATT profile template of one fake device.
// Configure it with the fluent WithService/WithCharacteristic/
// WithDescriptor chain, then register it on a FakeBackend.
type FakePeripheral struct {
	Address uint64

	mu       sync.Mutex
	services []*FakeService
	conns    []*FakeConnection
}

// NewPeripheral creates a peripheral with the given raw 48-bit address.
func NewPeripheral(address uint64) *FakePeripheral {
	return &FakePeripheral{Address: address}
}

// WithService adds a service to the profile.
func (p *FakePeripheral) WithService(uuid string) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, &FakeService{uuid: uuid})
	return p
}

// WithIncludedService adds an included service to the last added service.
func (p *FakePeripheral) WithIncludedService(uuid string) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 {
		panic("WithIncludedService: no service added yet, call WithService first")
	}
	last := p.services[len(p.services)-1]
	last.included = append(last.included, &FakeService{uuid: uuid})
	return p
}

// WithCharacteristic adds a characteristic to the last added service.
// Properties is a comma-separated list, e.g. "read,write,notify".
func (p *FakePeripheral) WithCharacteristic(uuid, properties string, value []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := p.services[len(p.services)-1]
	last.chars = append(last.chars, &FakeCharacteristic{
		uuid:  uuid,
		props: ParseProperties(properties),
		value: value,
	})
	return p
}

// WithDescriptor adds a descriptor to the last added characteristic.
func (p *FakePeripheral) WithDescriptor(uuid string, value []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 || len(p.services[len(p.services)-1].chars) == 0 {
		panic("WithDescriptor: no characteristic added yet, call WithCharacteristic first")
	}
	svc := p.services[len(p.services)-1]
	char := svc.chars[len(svc.chars)-1]
	char.descs = append(char.descs, &FakeDescriptor{uuid: uuid, value: value})
	return p
}

// Service returns the configured service by UUID, for assertions.
func (p *FakePeripheral) Service(uuid string) *FakeService {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.services {
		if strings.EqualFold(s.uuid, uuid) {
			return s
		}
	}
	return nil
}

// Characteristic returns the configured characteristic by UUID.
func (p *FakePeripheral) Characteristic(serviceUUID, charUUID string) *FakeCharacteristic {
	s := p.Service(serviceUUID)
	if s == nil {
		return nil
	}
	for _, c := range s.chars {
		if strings.EqualFold(c.uuid, charUUID) {
			return c
		}
	}
	return nil
}

// Connections returns every connection handed out for this peripheral.
func (p *FakePeripheral) Connections() []*FakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeConnection(nil), p.conns...)
}

// newConnection hands out a connection over the shared service handles.
// Handles are stable across queries, matching a platform GATT cache.
func (p *FakePeripheral) newConnection() *FakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn := &FakeConnection{peripheral: p}
	p.conns = append(p.conns, conn)
	return conn
}

// ParseProperties parses a comma-separated property list into the
// transport bitmask.
func ParseProperties(properties string) transport.Properties {
	var p transport.Properties
	for _, name := range strings.Split(properties, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "broadcast":
			p |= transport.PropBroadcast
		case "read":
			p |= transport.PropRead
		case "writewithoutresponse":
			p |= transport.PropWriteWithoutResponse
		case "write":
			p |= transport.PropWrite
		case "notify":
			p |= transport.PropNotify
		case "indicate":
			p |= transport.PropIndicate
		case "signedwrite":
			p |= transport.PropAuthenticatedSignedWrites
		case "extended":
			p |= transport.PropExtendedProperties
		}
	}
	return p
}

// FakeConnection implements transport.Connection over a peripheral's
// stable service handles.
type FakeConnection struct {
	peripheral *FakePeripheral

	released atomic.Int32

	mu                 sync.Mutex
	cachedQueries      int
	uncachedQueries    int
	servicesStatus     transport.Status
	servicesErr        error
	servicesStatusOnce bool
}

func (c *FakeConnection) Release() {
	c.released.Add(1)
}

// Released reports how many times Release was called.
func (c *FakeConnection) Released() int {
	return int(c.released.Load())
}

// FailServices makes the next (or every) Services call report the status.
func (c *FakeConnection) FailServices(status transport.Status, once bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servicesStatus = status
	c.servicesStatusOnce = once
}

// CachedQueries returns the number of cached-mode service queries served.
func (c *FakeConnection) CachedQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedQueries
}

// UncachedQueries returns the number of uncached-mode service queries served.
func (c *FakeConnection) UncachedQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uncachedQueries
}

func (c *FakeConnection) Services(ctx context.Context, mode transport.CacheMode) ([]transport.Service, transport.Status, error) {
	c.mu.Lock()
	if mode == transport.CacheModeCached {
		c.cachedQueries++
	} else {
		c.uncachedQueries++
	}
	status, err := c.servicesStatus, c.servicesErr
	if c.servicesStatusOnce {
		c.servicesStatus, c.servicesErr = transport.StatusSuccess, nil
		c.servicesStatusOnce = false
	}
	c.mu.Unlock()

	if status != transport.StatusSuccess || err != nil {
		return nil, status, err
	}

	c.peripheral.mu.Lock()
	defer c.peripheral.mu.Unlock()
	out := make([]transport.Service, len(c.peripheral.services))
	for i, s := range c.peripheral.services {
		out[i] = s
	}
	return out, transport.StatusSuccess, nil
}

// FakeService implements transport.Service.
type FakeService struct {
	uuid     string
	included []*FakeService

	mu              sync.Mutex
	chars           []*FakeCharacteristic
	cachedQueries   int
	uncachedQueries int
	charsStatus     transport.Status

	releaseCount atomic.Int32
}

func (s *FakeService) UUID() string { return s.uuid }

func (s *FakeService) Release() { s.releaseCount.Add(1) }

// Released reports how many times Release was called.
func (s *FakeService) Released() int { return int(s.releaseCount.Load()) }

// FailCharacteristics makes characteristic queries report the status.
func (s *FakeService) FailCharacteristics(status transport.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charsStatus = status
}

// CachedQueries returns the number of cached-mode characteristic queries.
func (s *FakeService) CachedQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedQueries
}

// UncachedQueries returns the number of uncached-mode characteristic queries.
func (s *FakeService) UncachedQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uncachedQueries
}

func (s *FakeService) Characteristics(ctx context.Context, mode transport.CacheMode) ([]transport.Characteristic, transport.Status, error) {
	s.mu.Lock()
	if mode == transport.CacheModeCached {
		s.cachedQueries++
	} else {
		s.uncachedQueries++
	}
	status := s.charsStatus
	chars := append([]*FakeCharacteristic(nil), s.chars...)
	s.mu.Unlock()

	if status != transport.StatusSuccess {
		return nil, status, nil
	}

	out := make([]transport.Characteristic, len(chars))
	for i, c := range chars {
		out[i] = c
	}
	return out, transport.StatusSuccess, nil
}

func (s *FakeService) Included(ctx context.Context, mode transport.CacheMode) ([]transport.Service, transport.Status, error) {
	out := make([]transport.Service, len(s.included))
	for i, inc := range s.included {
		out[i] = inc
	}
	return out, transport.StatusSuccess, nil
}

// FakeCharacteristic implements transport.Characteristic.
type FakeCharacteristic struct {
	uuid  string
	props transport.Properties

	mu        sync.Mutex
	value     []byte
	descs     []*FakeDescriptor
	listeners []func([]byte)

	ReadCalls   int
	WriteCalls  int
	Written     [][]byte
	CCCDWrites  []transport.CCCDValue
	readStatus  transport.Status
	writeStatus transport.Status
	cccdStatus  transport.Status

	releaseCount atomic.Int32
}

func (c *FakeCharacteristic) UUID() string { return c.uuid }

func (c *FakeCharacteristic) Properties() transport.Properties { return c.props }

func (c *FakeCharacteristic) Release() { c.releaseCount.Add(1) }

// Released reports how many times Release was called.
func (c *FakeCharacteristic) Released() int { return int(c.releaseCount.Load()) }

// FailReads / FailWrites / FailCCCD inject status failures.
func (c *FakeCharacteristic) FailReads(status transport.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readStatus = status
}

func (c *FakeCharacteristic) FailWrites(status transport.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeStatus = status
}

func (c *FakeCharacteristic) FailCCCD(status transport.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cccdStatus = status
}

func (c *FakeCharacteristic) Descriptors(ctx context.Context, mode transport.CacheMode) ([]transport.Descriptor, transport.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Descriptor, len(c.descs))
	for i, d := range c.descs {
		out[i] = d
	}
	return out, transport.StatusSuccess, nil
}

func (c *FakeCharacteristic) Read(ctx context.Context) ([]byte, transport.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCalls++
	if c.readStatus != transport.StatusSuccess {
		return nil, c.readStatus, nil
	}
	return append([]byte(nil), c.value...), transport.StatusSuccess, nil
}

func (c *FakeCharacteristic) Write(ctx context.Context, data []byte, withResponse bool) (transport.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteCalls++
	if c.writeStatus != transport.StatusSuccess {
		return c.writeStatus, nil
	}
	c.value = append([]byte(nil), data...)
	c.Written = append(c.Written, append([]byte(nil), data...))
	return transport.StatusSuccess, nil
}

func (c *FakeCharacteristic) WriteCCCD(ctx context.Context, value transport.CCCDValue) (transport.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cccdStatus != transport.StatusSuccess {
		return c.cccdStatus, nil
	}
	c.CCCDWrites = append(c.CCCDWrites, value)
	return transport.StatusSuccess, nil
}

func (c *FakeCharacteristic) OnValueChanged(fn func([]byte)) transport.Listener {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	idx := len(c.listeners) - 1
	c.mu.Unlock()
	return &fakeListener{char: c, idx: idx}
}

// Notify simulates a server-initiated value update.
func (c *FakeCharacteristic) Notify(data []byte) {
	c.mu.Lock()
	listeners := append([]func([]byte){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(data)
		}
	}
}

// ListenerCount returns the number of attached listeners.
func (c *FakeCharacteristic) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, fn := range c.listeners {
		if fn != nil {
			n++
		}
	}
	return n
}

// CCCDWriteCount returns the number of successful CCCD writes.
func (c *FakeCharacteristic) CCCDWriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.CCCDWrites)
}

type fakeListener struct {
	char *FakeCharacteristic
	idx  int
}

func (l *fakeListener) Detach() {
	l.char.mu.Lock()
	defer l.char.mu.Unlock()
	l.char.listeners[l.idx] = nil
}

// FakeDescriptor implements transport.Descriptor.
type FakeDescriptor struct {
	uuid string

	mu          sync.Mutex
	value       []byte
	readStatus  transport.Status
	writeStatus transport.Status

	releaseCount atomic.Int32
}

func (d *FakeDescriptor) UUID() string { return d.uuid }

func (d *FakeDescriptor) Release() { d.releaseCount.Add(1) }

// Released reports how many times Release was called.
func (d *FakeDescriptor) Released() int { return int(d.releaseCount.Load()) }

func (d *FakeDescriptor) FailReads(status transport.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readStatus = status
}

func (d *FakeDescriptor) FailWrites(status transport.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeStatus = status
}

func (d *FakeDescriptor) Read(ctx context.Context) ([]byte, transport.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readStatus != transport.StatusSuccess {
		return nil, d.readStatus, nil
	}
	return append([]byte(nil), d.value...), transport.StatusSuccess, nil
}

func (d *FakeDescriptor) Write(ctx context.Context, data []byte) (transport.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeStatus != transport.StatusSuccess {
		return d.writeStatus, nil
	}
	d.value = append([]byte(nil), data...)
	return transport.StatusSuccess, nil
}
