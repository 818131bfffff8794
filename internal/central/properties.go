package central

import "github.com/blekit/gattc/internal/transport"

// Capabilities is the decoded capability set of a characteristic. Every bit
// of the transport bitmask is decoded independently; a characteristic may
// carry zero or several.
type Capabilities struct {
	Broadcast                 bool
	Read                      bool
	WriteWithoutResponse      bool
	Write                     bool
	Notify                    bool
	Indicate                  bool
	AuthenticatedSignedWrites bool
	ExtendedProperties        bool
}

// DecodeProperties decodes a transport-level property bitmask.
func DecodeProperties(p transport.Properties) Capabilities {
	return Capabilities{
		Broadcast:                 p&transport.PropBroadcast != 0,
		Read:                      p&transport.PropRead != 0,
		WriteWithoutResponse:      p&transport.PropWriteWithoutResponse != 0,
		Write:                     p&transport.PropWrite != 0,
		Notify:                    p&transport.PropNotify != 0,
		Indicate:                  p&transport.PropIndicate != 0,
		AuthenticatedSignedWrites: p&transport.PropAuthenticatedSignedWrites != 0,
		ExtendedProperties:        p&transport.PropExtendedProperties != 0,
	}
}

// Names returns the set capability names in bitmask order.
func (c Capabilities) Names() []string {
	var names []string
	if c.Broadcast {
		names = append(names, "broadcast")
	}
	if c.Read {
		names = append(names, "read")
	}
	if c.WriteWithoutResponse {
		names = append(names, "writeWithoutResponse")
	}
	if c.Write {
		names = append(names, "write")
	}
	if c.Notify {
		names = append(names, "notify")
	}
	if c.Indicate {
		names = append(names, "indicate")
	}
	if c.AuthenticatedSignedWrites {
		names = append(names, "authenticatedSignedWrites")
	}
	if c.ExtendedProperties {
		names = append(names, "extendedProperties")
	}
	return names
}
