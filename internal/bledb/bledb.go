// Package bledb holds the UUID/address normalization rules and the
// assigned-number lookup tables shared by the whole central stack.
package bledb

import (
	"fmt"
	"strings"
)

// bluetoothBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) once dashes are stripped.
const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to its canonical internal form:
// lowercase hex with dashes, braces and 0x prefix stripped. A 128-bit UUID
// matching the Bluetooth SIG base pattern is shortened to its 4-hex-digit
// assigned-number form; any other 128-bit UUID stays as 32 hex characters.
// The function is idempotent: normalizing an already normalized UUID
// returns the same string.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if !isHex(s) {
		return ""
	}

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, bluetoothBaseSuffix) {
		return s[4:8]
	}

	switch len(s) {
	case 4, 8, 32:
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// DeviceID derives the stable device identifier from a raw 48-bit Bluetooth
// address: 12 lowercase hex digits, no separators.
func DeviceID(address uint64) string {
	return fmt.Sprintf("%012x", address&0xffffffffffff)
}

// FormatAddress renders a raw 48-bit address as six lowercase-hex byte pairs
// joined by colons, e.g. 0x0011223344AA -> "00:11:22:33:44:aa".
func FormatAddress(address uint64) string {
	id := DeviceID(address)
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, id[i:i+2])
	}
	return strings.Join(parts, ":")
}

// AddressType classifies a raw 48-bit address as "public" or "random" from
// the two most-significant bits (0b11 marks a random static address).
func AddressType(address uint64) string {
	if (address>>46)&0x3 == 0x3 {
		return "random"
	}
	return "public"
}

// LookupService returns the assigned name for a well-known service UUID,
// or "" if the UUID is vendor-specific / unknown.
func LookupService(uuid string) string {
	return knownServices[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the assigned name for a well-known
// characteristic UUID, or "".
func LookupCharacteristic(uuid string) string {
	return knownCharacteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the assigned name for a well-known descriptor
// UUID, or "".
func LookupDescriptor(uuid string) string {
	return knownDescriptors[NormalizeUUID(uuid)]
}
