package central_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blekit/gattc/internal/central"
	"github.com/blekit/gattc/internal/transport"
)

func TestDecodeProperties(t *testing.T) {
	// GOAL: Verify every bit of the transport bitmask decodes
	// independently.

	tests := []struct {
		name string
		mask transport.Properties
		want []string
	}{
		{"none", 0, nil},
		{"read only", transport.PropRead, []string{"read"}},
		{
			"read write notify",
			transport.PropRead | transport.PropWrite | transport.PropNotify,
			[]string{"read", "write", "notify"},
		},
		{
			"all bits",
			transport.PropBroadcast | transport.PropRead | transport.PropWriteWithoutResponse |
				transport.PropWrite | transport.PropNotify | transport.PropIndicate |
				transport.PropAuthenticatedSignedWrites | transport.PropExtendedProperties,
			[]string{
				"broadcast", "read", "writeWithoutResponse", "write",
				"notify", "indicate", "authenticatedSignedWrites", "extendedProperties",
			},
		},
		{
			"signed writes and extended only",
			transport.PropAuthenticatedSignedWrites | transport.PropExtendedProperties,
			[]string{"authenticatedSignedWrites", "extendedProperties"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := central.DecodeProperties(tt.mask)
			assert.Equal(t, tt.want, caps.Names())
		})
	}
}

func TestUnsupportedOperations(t *testing.T) {
	// GOAL: Verify operations with no defined behavior report Unsupported.

	c := central.New(nil, quietLogger(), nil)

	err := c.Broadcast("dev", "180d", "2a37", true)
	assert.True(t, central.IsKind(err, central.KindUnsupported))

	_, err = c.ReadHandle("dev", 0x0003)
	assert.True(t, central.IsKind(err, central.KindUnsupported))

	err = c.WriteHandle("dev", 0x0003, []byte{1}, false)
	assert.True(t, central.IsKind(err, central.KindUnsupported))
}
