package central_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/testutils"
	"github.com/blekit/gattc/internal/transport"
)

// AggregatorTestSuite tests advertisement folding and discovery emission.
type AggregatorTestSuite struct {
	CentralSuite
}

func (suite *AggregatorTestSuite) inject(ev transport.AdvertisementEvent) {
	suite.Require().NoError(suite.Central.StartScanning(nil, false))
	suite.Backend.Watcher().Inject(ev)
}

func (suite *AggregatorTestSuite) TestDiscoveryEmission() {
	// GOAL: Verify discovery events are emitted only for scan responses,
	// carrying the fully merged snapshot.

	suite.Run("primary packet alone emits nothing", func() {
		suite.inject(testutils.NewAdvertisement(0xaabbccddeeff).
			WithKind(transport.AdvConnectableUndirected).
			WithName("quiet").
			Build())

		suite.expectNoEvent()
		suite.Require().Equal(1, suite.Central.Registry().Len(), "record MUST still be created")
	})

	suite.Run("scan response emits the merged snapshot", func() {
		addr := uint64(0x0011223344aa)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvConnectableUndirected).
			WithName("merged").
			WithServiceUUIDs("180D").
			Build())
		suite.Backend.Watcher().Inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			WithServiceUUIDs("180F").
			WithRSSI(-42).
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Assert().Equal("0011223344aa", ev.DeviceID, "id MUST be the 12-digit hex address")
		suite.Assert().Equal("00:11:22:33:44:aa", ev.Address, "address MUST be colon formatted")
		suite.Assert().Equal("public", ev.AddressType)
		suite.Require().NotNil(ev.Connectable, "connectable MUST be classified from the first PDU")
		suite.Assert().True(*ev.Connectable)
		suite.Require().NotNil(ev.Advert.LocalName)
		suite.Assert().Equal("merged", *ev.Advert.LocalName, "name MUST survive from the primary packet")
		suite.Assert().Equal([]string{"180d", "180f"}, ev.Advert.ServiceUUIDs, "UUIDs MUST accumulate in first-seen order")
		suite.Assert().Equal(int16(-42), ev.RSSI)
	})
}

func (suite *AggregatorTestSuite) TestConnectableClassification() {
	// GOAL: Verify the tri-state connectable flag is derived once from the
	// first PDU type and never revised.

	scanResponse := func(addr uint64) transport.AdvertisementEvent {
		return testutils.NewAdvertisement(addr).WithKind(transport.AdvScanResponse).Build()
	}

	suite.Run("non-connectable PDU classifies false", func() {
		addr := uint64(0x010000000001)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvNonConnectableUndirected).
			Build())
		suite.Backend.Watcher().Inject(scanResponse(addr))

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Require().NotNil(ev.Connectable)
		suite.Assert().False(*ev.Connectable)
	})

	suite.Run("scan response first leaves the flag unknown", func() {
		addr := uint64(0x010000000002)
		suite.inject(scanResponse(addr))

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Assert().Nil(ev.Connectable, "flag MUST stay unknown when no classifiable PDU was seen")
	})

	suite.Run("a later connectable PDU does not revise the flag", func() {
		addr := uint64(0x010000000003)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScannableUndirected).
			Build())
		suite.Backend.Watcher().Inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvConnectableUndirected).
			Build())
		suite.Backend.Watcher().Inject(scanResponse(addr))

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Require().NotNil(ev.Connectable)
		suite.Assert().False(*ev.Connectable, "first classification MUST win")
	})
}

func (suite *AggregatorTestSuite) TestPayloadMerging() {
	// GOAL: Verify manufacturer data prefixing, TX power decoding and
	// last-write-wins naming.

	suite.Run("manufacturer data is prefixed with its little-endian company id", func() {
		addr := uint64(0x020000000001)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			WithManufacturer(0x004c, []byte{0x02, 0x15}).
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Assert().Equal([]byte{0x4c, 0x00, 0x02, 0x15}, ev.Advert.ManufacturerData)
	})

	suite.Run("tx power decodes two's complement", func() {
		addr := uint64(0x020000000002)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			WithTxPower(-8).
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Require().NotNil(ev.Advert.TxPowerLevel)
		suite.Assert().Equal(-8, *ev.Advert.TxPowerLevel)
	})

	suite.Run("tx power is absent when never advertised", func() {
		addr := uint64(0x020000000003)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Assert().Nil(ev.Advert.TxPowerLevel)
	})

	suite.Run("empty name never overwrites a previous one", func() {
		addr := uint64(0x020000000004)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvConnectableUndirected).
			WithName("keeper").
			Build())
		suite.Backend.Watcher().Inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Require().NotNil(ev.Advert.LocalName)
		suite.Assert().Equal("keeper", *ev.Advert.LocalName)
	})

	suite.Run("duplicate service UUIDs are not accumulated", func() {
		addr := uint64(0x020000000005)
		suite.inject(testutils.NewAdvertisement(addr).
			WithKind(transport.AdvScanResponse).
			WithServiceUUIDs("180D", "0000180d-0000-1000-8000-00805f9b34fb").
			Build())

		ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
		suite.Assert().Equal([]string{"180d"}, ev.Advert.ServiceUUIDs, "equivalent forms MUST deduplicate after normalization")
	})
}

func (suite *AggregatorTestSuite) TestRandomAddressType() {
	// GOAL: Verify the address type is derived from the top bits of the
	// 48-bit address.

	addr := uint64(0xc00000000001)
	suite.inject(testutils.NewAdvertisement(addr).
		WithKind(transport.AdvScanResponse).
		Build())

	ev := waitEvent[central.DiscoverEvent](&suite.CentralSuite)
	suite.Assert().Equal("random", ev.AddressType)
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}
