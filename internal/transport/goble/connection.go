package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/transport"
)

// connection implements transport.Connection over one ble.Client. Wrapped
// service handles are memoized so cached-mode queries return stable objects
// for the same UUID, matching a platform GATT cache.
type connection struct {
	client ble.Client
	logger *logrus.Logger

	mu       sync.Mutex
	services []*service
}

func newConnection(client ble.Client, logger *logrus.Logger) *connection {
	return &connection{client: client, logger: logger}
}

func (c *connection) Release() {
	if err := c.client.CancelConnection(); err != nil {
		c.logger.WithField("error", NormalizeError(err)).Debug("Connection teardown reported an error")
	}
}

func (c *connection) Services(ctx context.Context, mode transport.CacheMode) ([]transport.Service, transport.Status, error) {
	c.mu.Lock()
	cached := c.services
	c.mu.Unlock()

	if mode == transport.CacheModeCached && len(cached) > 0 {
		return asServices(cached), transport.StatusSuccess, nil
	}

	raw, err := c.client.DiscoverServices(nil)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}

	wrapped := make([]*service, len(raw))
	for i, s := range raw {
		wrapped[i] = &service{conn: c, raw: s}
	}

	c.mu.Lock()
	c.services = wrapped
	c.mu.Unlock()
	return asServices(wrapped), transport.StatusSuccess, nil
}

func asServices(in []*service) []transport.Service {
	out := make([]transport.Service, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// service implements transport.Service. go-ble frees subordinate handles
// with the connection, so Release on them is a registration-level no-op.
type service struct {
	conn *connection
	raw  *ble.Service

	mu    sync.Mutex
	chars []*characteristic
}

func (s *service) Release() {}

func (s *service) UUID() string {
	return s.raw.UUID.String()
}

func (s *service) Characteristics(ctx context.Context, mode transport.CacheMode) ([]transport.Characteristic, transport.Status, error) {
	s.mu.Lock()
	cached := s.chars
	s.mu.Unlock()

	if mode == transport.CacheModeCached && len(cached) > 0 {
		return asCharacteristics(cached), transport.StatusSuccess, nil
	}

	raw, err := s.conn.client.DiscoverCharacteristics(nil, s.raw)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}

	wrapped := make([]*characteristic, len(raw))
	for i, c := range raw {
		wrapped[i] = &characteristic{conn: s.conn, raw: c}
	}

	s.mu.Lock()
	s.chars = wrapped
	s.mu.Unlock()
	return asCharacteristics(wrapped), transport.StatusSuccess, nil
}

// Included enumerates included services with a fresh discovery each call;
// included-service queries are rare enough that memoization buys nothing.
func (s *service) Included(ctx context.Context, mode transport.CacheMode) ([]transport.Service, transport.Status, error) {
	raw, err := s.conn.client.DiscoverIncludedServices(nil, s.raw)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}
	out := make([]transport.Service, len(raw))
	for i, inc := range raw {
		out[i] = &service{conn: s.conn, raw: inc}
	}
	return out, transport.StatusSuccess, nil
}

func asCharacteristics(in []*characteristic) []transport.Characteristic {
	out := make([]transport.Characteristic, len(in))
	for i, c := range in {
		out[i] = c
	}
	return out
}

// characteristic implements transport.Characteristic. The go-ble property
// bitmask matches the transport bit layout, so the cast is direct.
type characteristic struct {
	conn *connection
	raw  *ble.Characteristic

	mu         sync.Mutex
	descs      []*descriptor
	listeners  []func([]byte)
	subscribed bool
}

func (c *characteristic) Release() {}

func (c *characteristic) UUID() string {
	return c.raw.UUID.String()
}

func (c *characteristic) Properties() transport.Properties {
	return transport.Properties(c.raw.Property)
}

func (c *characteristic) Descriptors(ctx context.Context, mode transport.CacheMode) ([]transport.Descriptor, transport.Status, error) {
	c.mu.Lock()
	cached := c.descs
	c.mu.Unlock()

	if mode == transport.CacheModeCached && len(cached) > 0 {
		return asDescriptors(cached), transport.StatusSuccess, nil
	}

	raw, err := c.conn.client.DiscoverDescriptors(nil, c.raw)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}

	wrapped := make([]*descriptor, len(raw))
	for i, d := range raw {
		wrapped[i] = &descriptor{conn: c.conn, raw: d}
	}

	c.mu.Lock()
	c.descs = wrapped
	c.mu.Unlock()
	return asDescriptors(wrapped), transport.StatusSuccess, nil
}

func asDescriptors(in []*descriptor) []transport.Descriptor {
	out := make([]transport.Descriptor, len(in))
	for i, d := range in {
		out[i] = d
	}
	return out
}

func (c *characteristic) Read(ctx context.Context) ([]byte, transport.Status, error) {
	data, err := c.conn.client.ReadCharacteristic(c.raw)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}
	return data, transport.StatusSuccess, nil
}

func (c *characteristic) Write(ctx context.Context, data []byte, withResponse bool) (transport.Status, error) {
	if err := c.conn.client.WriteCharacteristic(c.raw, data, !withResponse); err != nil {
		return classify(err)
	}
	return transport.StatusSuccess, nil
}

// WriteCCCD maps the client-configuration write onto go-ble's subscribe
// calls, which perform the descriptor write internally. Incoming values fan
// out to every attached listener.
func (c *characteristic) WriteCCCD(ctx context.Context, value transport.CCCDValue) (transport.Status, error) {
	switch value {
	case transport.CCCDNotify, transport.CCCDIndicate:
		indicate := value == transport.CCCDIndicate

		c.mu.Lock()
		already := c.subscribed
		c.mu.Unlock()
		if already {
			return transport.StatusSuccess, nil
		}

		if err := c.conn.client.Subscribe(c.raw, indicate, c.fanout); err != nil {
			return classify(err)
		}
		c.mu.Lock()
		c.subscribed = true
		c.mu.Unlock()
		return transport.StatusSuccess, nil

	default:
		c.mu.Lock()
		subscribed := c.subscribed
		c.mu.Unlock()
		if !subscribed {
			return transport.StatusSuccess, nil
		}

		if err := c.conn.client.Unsubscribe(c.raw, false); err != nil {
			return classify(err)
		}
		c.mu.Lock()
		c.subscribed = false
		c.mu.Unlock()
		return transport.StatusSuccess, nil
	}
}

func (c *characteristic) fanout(data []byte) {
	c.mu.Lock()
	listeners := append([]func([]byte){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(data)
		}
	}
}

func (c *characteristic) OnValueChanged(fn func([]byte)) transport.Listener {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	idx := len(c.listeners) - 1
	c.mu.Unlock()
	return &listener{char: c, idx: idx}
}

type listener struct {
	char *characteristic
	idx  int
}

func (l *listener) Detach() {
	l.char.mu.Lock()
	defer l.char.mu.Unlock()
	l.char.listeners[l.idx] = nil
}

// descriptor implements transport.Descriptor.
type descriptor struct {
	conn *connection
	raw  *ble.Descriptor
}

func (d *descriptor) Release() {}

func (d *descriptor) UUID() string {
	return d.raw.UUID.String()
}

func (d *descriptor) Read(ctx context.Context) ([]byte, transport.Status, error) {
	data, err := d.conn.client.ReadDescriptor(d.raw)
	if err != nil {
		status, nerr := classify(err)
		return nil, status, nerr
	}
	return data, transport.StatusSuccess, nil
}

func (d *descriptor) Write(ctx context.Context, data []byte) (transport.Status, error) {
	if err := d.conn.client.WriteDescriptor(d.raw, data); err != nil {
		return classify(err)
	}
	return transport.StatusSuccess, nil
}
