package central_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/transport"
)

// ResolverTestSuite tests cached on-demand resolution through the
// characteristic and descriptor level operations.
type ResolverTestSuite struct {
	CentralSuite
}

func (suite *ResolverTestSuite) TestCachedResolution() {
	// GOAL: Verify resolution uses cached-mode queries and repeated
	// operations hit the cache instead of the transport.

	id, conn := suite.connectPeer()

	data, err := suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, batteryLevel)
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte{85}, data)
	suite.Assert().Equal(1, conn.CachedQueries(), "resolution MUST use cached mode")
	suite.Assert().Zero(conn.UncachedQueries())

	svc := suite.peripheral.Service(batteryUUID)
	suite.Assert().Equal(1, svc.CachedQueries())

	// Second read: both lookups served from the device caches.
	_, err = suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, batteryLevel)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, conn.CachedQueries(), "service cache MUST absorb the second resolution")
	suite.Assert().Equal(1, svc.CachedQueries(), "characteristic cache MUST absorb the second resolution")
}

func (suite *ResolverTestSuite) TestResolutionErrors() {
	// GOAL: Verify the resolver's precondition and NotFound contract.

	suite.Run("not connected", func() {
		id := suite.discoverPeer(peerAddress)
		_, err := suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, batteryLevel)
		suite.Assert().True(central.IsKind(err, central.KindInvalidState))
	})

	suite.Run("unknown service", func() {
		id, _ := suite.connectPeer()
		_, err := suite.Central.ReadCharacteristic(context.Background(), id, "1234", batteryLevel)
		suite.Assert().True(central.IsKind(err, central.KindNotFound))
	})

	suite.Run("unknown characteristic", func() {
		id, _ := suite.connectPeer()
		_, err := suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, "ffff")
		suite.Assert().True(central.IsKind(err, central.KindNotFound))

		ev := waitEvent[central.ReadEvent](&suite.CentralSuite)
		suite.Assert().Error(ev.Err, "read event MUST carry the failure")
	})

	suite.Run("unknown descriptor", func() {
		id, _ := suite.connectPeer()
		_, err := suite.Central.ReadDescriptor(context.Background(), id, batteryUUID, batteryLevel, "2999")
		suite.Assert().True(central.IsKind(err, central.KindNotFound))
	})
}

func (suite *ResolverTestSuite) TestDisconnectInvalidatesCaches() {
	// GOAL: Verify a post-reconnect resolution performs a fresh cached-mode
	// query instead of returning a stale handle.

	id, conn := suite.connectPeer()

	_, err := suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, batteryLevel)
	suite.Require().NoError(err)
	suite.Require().Equal(1, conn.CachedQueries())

	suite.Require().NoError(suite.Central.Disconnect(id))
	waitEvent[central.DisconnectEvent](&suite.CentralSuite)

	// Reconnect hands out a fresh connection; the resolver must re-query.
	suite.Require().NoError(suite.Central.Connect(context.Background(), id))
	conns := suite.peripheral.Connections()
	conn2 := conns[len(conns)-1]
	suite.Require().NotSame(conn, conn2)

	_, err = suite.Central.ReadCharacteristic(context.Background(), id, batteryUUID, batteryLevel)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, conn2.CachedQueries(), "stale cache MUST NOT satisfy the resolution")
}

func (suite *ResolverTestSuite) TestDescriptorResolution() {
	// GOAL: Verify descriptor-level read/write resolves through the full
	// chain and caches by the compound key.

	id, _ := suite.connectPeer()

	data, err := suite.Central.ReadDescriptor(context.Background(), id, batteryUUID, batteryLevel, cccdUUID)
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte{0, 0}, data)

	ev := waitEvent[central.ReadValueEvent](&suite.CentralSuite)
	suite.Assert().Equal(cccdUUID, ev.DescriptorUUID)
	suite.Assert().NoError(ev.Err)

	suite.Require().NoError(suite.Central.WriteDescriptor(context.Background(), id, batteryUUID, batteryLevel, cccdUUID, []byte{1, 0}))
	wev := waitEvent[central.WriteValueEvent](&suite.CentralSuite)
	suite.Assert().NoError(wev.Err)

	data, err = suite.Central.ReadDescriptor(context.Background(), id, batteryUUID, batteryLevel, cccdUUID)
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte{1, 0}, data)
}

func (suite *ResolverTestSuite) TestDiscoverCharacteristics() {
	// GOAL: Verify uncached characteristic discovery with decoded property
	// sets.

	id, _ := suite.connectPeer()

	chars, err := suite.Central.DiscoverCharacteristics(context.Background(), id, heartRate, nil)
	suite.Require().NoError(err)
	suite.Require().Len(chars, 2)
	suite.Assert().Equal(hrMeasure, chars[0].UUID)
	suite.Assert().Equal("Heart Rate Measurement", chars[0].KnownName)
	suite.Assert().True(chars[0].Properties.Notify)
	suite.Assert().False(chars[0].Properties.Read)
	suite.Assert().True(chars[1].Properties.Write)
	suite.Assert().True(chars[1].Properties.WriteWithoutResponse)

	svc := suite.peripheral.Service(heartRate)
	suite.Assert().Equal(1, svc.UncachedQueries(), "top-level discovery MUST be uncached")
}

func (suite *ResolverTestSuite) TestDiscoverIncludedServices() {
	// GOAL: Verify included-service enumeration for empty and populated
	// inclusion lists, with the filter applied.

	id, _ := suite.connectPeer()

	suite.Run("service without inclusions", func() {
		included, err := suite.Central.DiscoverIncludedServices(context.Background(), id, heartRate, nil)
		suite.Require().NoError(err)
		suite.Assert().Empty(included)

		ev := waitEvent[central.IncludedServicesDiscoverEvent](&suite.CentralSuite)
		suite.Assert().NoError(ev.Err)
		suite.Assert().Equal(heartRate, ev.ServiceUUID)
		suite.Assert().Empty(ev.Included)
	})

	// Heart rate is the last configured service, so the inclusions land
	// there.
	suite.peripheral.
		WithIncludedService(batteryUUID).
		WithIncludedService("1802")

	suite.Run("inclusions enumerated", func() {
		included, err := suite.Central.DiscoverIncludedServices(context.Background(), id, heartRate, nil)
		suite.Require().NoError(err)
		suite.Require().Len(included, 2)
		suite.Assert().Equal(batteryUUID, included[0].UUID)
		suite.Assert().Equal("Battery Service", included[0].KnownName)
		suite.Assert().Equal("1802", included[1].UUID)

		ev := waitEvent[central.IncludedServicesDiscoverEvent](&suite.CentralSuite)
		suite.Assert().NoError(ev.Err)
		suite.Assert().Len(ev.Included, 2)
	})

	suite.Run("filter narrows the result", func() {
		included, err := suite.Central.DiscoverIncludedServices(context.Background(), id, heartRate, []string{batteryUUID})
		suite.Require().NoError(err)
		suite.Require().Len(included, 1)
		suite.Assert().Equal(batteryUUID, included[0].UUID)
		waitEvent[central.IncludedServicesDiscoverEvent](&suite.CentralSuite)
	})

	suite.Run("unknown parent service", func() {
		_, err := suite.Central.DiscoverIncludedServices(context.Background(), id, "1234", nil)
		suite.Assert().True(central.IsKind(err, central.KindNotFound))

		ev := waitEvent[central.IncludedServicesDiscoverEvent](&suite.CentralSuite)
		suite.Assert().Error(ev.Err, "discovery event MUST carry the failure")
	})
}

func (suite *ResolverTestSuite) TestDiscoverDescriptors() {
	// GOAL: Verify top-level descriptor discovery reports the configured
	// descriptors with assigned names, and empty for a bare characteristic.

	id, _ := suite.connectPeer()

	suite.Run("descriptors enumerated", func() {
		descs, err := suite.Central.DiscoverDescriptors(context.Background(), id, batteryUUID, batteryLevel)
		suite.Require().NoError(err)
		suite.Require().Len(descs, 1)
		suite.Assert().Equal(cccdUUID, descs[0].UUID)
		suite.Assert().Equal("Client Characteristic Configuration", descs[0].KnownName)

		ev := waitEvent[central.DescriptorsDiscoverEvent](&suite.CentralSuite)
		suite.Assert().NoError(ev.Err)
		suite.Assert().Equal(batteryUUID, ev.ServiceUUID)
		suite.Assert().Equal(batteryLevel, ev.CharacteristicUUID)
		suite.Assert().Len(ev.Descriptors, 1)
	})

	suite.Run("characteristic without descriptors", func() {
		descs, err := suite.Central.DiscoverDescriptors(context.Background(), id, heartRate, hrControl)
		suite.Require().NoError(err)
		suite.Assert().Empty(descs)
		waitEvent[central.DescriptorsDiscoverEvent](&suite.CentralSuite)
	})

	suite.Run("unknown characteristic", func() {
		_, err := suite.Central.DiscoverDescriptors(context.Background(), id, batteryUUID, "ffff")
		suite.Assert().True(central.IsKind(err, central.KindNotFound))

		ev := waitEvent[central.DescriptorsDiscoverEvent](&suite.CentralSuite)
		suite.Assert().Error(ev.Err, "discovery event MUST carry the failure")
	})
}

func (suite *ResolverTestSuite) TestWriteCharacteristic() {
	// GOAL: Verify write semantics including fire-and-forget suppression.

	id, _ := suite.connectPeer()
	char := suite.peripheral.Characteristic(heartRate, hrControl)

	suite.Run("write with response", func() {
		suite.Require().NoError(suite.Central.WriteCharacteristic(context.Background(), id, heartRate, hrControl, []byte{1}, false))
		ev := waitEvent[central.WriteEvent](&suite.CentralSuite)
		suite.Assert().NoError(ev.Err)
		suite.Assert().Equal([][]byte{{1}}, char.Written)
	})

	suite.Run("failure surfaces on acknowledged writes", func() {
		char.FailWrites(transport.StatusProtocolError)
		err := suite.Central.WriteCharacteristic(context.Background(), id, heartRate, hrControl, []byte{2}, false)
		suite.Require().Error(err)
		suite.Assert().True(central.IsKind(err, central.KindTransportFailure))
	})

	suite.Run("failure is suppressed on fire-and-forget writes", func() {
		err := suite.Central.WriteCharacteristic(context.Background(), id, heartRate, hrControl, []byte{3}, true)
		suite.Assert().NoError(err, "fire-and-forget failures MUST NOT surface")
	})
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}
