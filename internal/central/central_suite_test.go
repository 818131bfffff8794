package central_test

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/blekit/gattc/internal/bledb"
	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/testutils"
	"github.com/blekit/gattc/internal/transport"
)

const (
	peerAddress  = uint64(0x001122334455)
	batteryUUID  = "180f"
	batteryLevel = "2a19"
	heartRate    = "180d"
	hrMeasure    = "2a37"
	hrControl    = "2a39"
	cccdUUID     = "2902"
)

// CentralSuite wires a Central over a fake backend with one powered-on
// radio and one peripheral carrying a battery and heart rate profile.
type CentralSuite struct {
	suite.Suite

	Logger  *logrus.Logger
	Backend *testutils.FakeBackend
	Radio   *testutils.FakeRadio
	Central *central.Central

	peripheral *testutils.FakePeripheral
}

func (suite *CentralSuite) SetupTest() {
	suite.Logger = logrus.New()
	suite.Logger.SetOutput(io.Discard)

	suite.Backend = testutils.NewFakeBackend()
	suite.Radio = suite.Backend.WithRadio(transport.RadioStateOn)

	suite.peripheral = testutils.NewPeripheral(peerAddress).
		WithService(batteryUUID).
		WithCharacteristic(batteryLevel, "read", []byte{85}).
		WithDescriptor(cccdUUID, []byte{0, 0}).
		WithService(heartRate).
		WithCharacteristic(hrMeasure, "notify", []byte{0, 75}).
		WithCharacteristic(hrControl, "write,writeWithoutResponse", nil)
	suite.Backend.AddPeripheral(suite.peripheral)

	suite.Central = central.New(suite.Backend, suite.Logger, nil)
	suite.Central.Start(context.Background())

	// The initial radio enumeration is asynchronous; wait for it so the
	// tests below never race the monitor goroutine.
	ev := waitEvent[central.StateChangeEvent](suite)
	suite.Require().Equal(central.RadioPoweredOn, ev.State, "radio MUST come up powered on")
}

func (suite *CentralSuite) TearDownTest() {
	suite.Central.Stop()
}

// waitEvent reads the event stream until an event of type E arrives,
// discarding unrelated events along the way.
func waitEvent[E central.Event](suite *CentralSuite) E {
	suite.T().Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-suite.Central.Events():
			if e, ok := ev.(E); ok {
				return e
			}
		case <-deadline:
			var zero E
			suite.Require().FailNowf("timed out", "no %T event within deadline", zero)
			return zero
		}
	}
}

// expectNoEvent asserts the stream stays silent for a short window.
func (suite *CentralSuite) expectNoEvent() {
	suite.T().Helper()
	select {
	case ev := <-suite.Central.Events():
		suite.Require().FailNowf("unexpected event", "got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// discoverPeer injects a connectable advertisement followed by its scan
// response and returns the resulting device identifier.
func (suite *CentralSuite) discoverPeer(address uint64) string {
	suite.T().Helper()
	suite.Require().NoError(suite.Central.StartScanning(nil, false))

	w := suite.Backend.Watcher()
	suite.Require().NotNil(w, "watcher MUST exist after StartScanning")

	w.Inject(testutils.NewAdvertisement(address).
		WithKind(transport.AdvConnectableUndirected).
		WithName("test-peer").
		Build())
	w.Inject(testutils.NewAdvertisement(address).
		WithKind(transport.AdvScanResponse).
		Build())

	ev := waitEvent[central.DiscoverEvent](suite)
	suite.Require().Equal(bledb.DeviceID(address), ev.DeviceID, "discovery MUST report the address-derived id")
	return ev.DeviceID
}

// connectPeer discovers and connects the default peripheral, returning the
// device id and the live fake connection.
func (suite *CentralSuite) connectPeer() (string, *testutils.FakeConnection) {
	suite.T().Helper()
	id := suite.discoverPeer(peerAddress)
	suite.Require().NoError(suite.Central.Connect(context.Background(), id))

	ev := waitEvent[central.ConnectEvent](suite)
	suite.Require().NoError(ev.Err, "connect event MUST carry no error")

	conns := suite.peripheral.Connections()
	suite.Require().NotEmpty(conns, "peripheral MUST have handed out a connection")
	return id, conns[len(conns)-1]
}
