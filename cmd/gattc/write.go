package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service-uuid> <char-uuid> <payload>",
	Short: "Write a characteristic or descriptor value",
	Long: `Write data to a BLE characteristic or descriptor.

The payload is UTF-8 text by default; prefix it with 0x (or pass --hex)
for a hex-encoded byte string.

Examples:
  # Write text
  gattc write aa:bb:cc:dd:ee:ff 6e400001 6e400002 "hello"

  # Write raw bytes
  gattc write aa:bb:cc:dd:ee:ff 180d 2a39 0x01

  # Fire-and-forget write (no response, failures suppressed)
  gattc write aa:bb:cc:dd:ee:ff 6e400001 6e400002 0xdeadbeef --no-response`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeDescUUID   string
	writeHex        bool
	writeNoResponse bool
	writeTimeout    time.Duration
	writeVerbose    bool
)

func init() {
	writeCmd.Flags().StringVar(&writeDescUUID, "desc", "", "Descriptor UUID (writes descriptor instead of characteristic)")
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Treat the payload as a hex byte string")
	writeCmd.Flags().BoolVar(&writeNoResponse, "no-response", false, "Write without response (fire-and-forget)")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 30*time.Second, "Discovery scan timeout")
	writeCmd.Flags().BoolVar(&writeVerbose, "verbose", false, "Verbose logging")
}

// parsePayload decodes the user payload: hex when forced or 0x-prefixed,
// UTF-8 bytes otherwise.
func parsePayload(payload string, forceHex bool) ([]byte, error) {
	s := payload
	isHex := forceHex
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		isHex = true
	}
	if !isHex {
		return []byte(payload), nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", payload, err)
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	data, err := parsePayload(args[3], writeHex)
	if err != nil {
		return err
	}
	if writeDescUUID != "" && writeNoResponse {
		return fmt.Errorf("--no-response applies to characteristic writes only")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	c := newCentral(ctx, cfg, logger)
	defer c.Stop()

	id, err := connectByAddress(ctx, c, args[0], writeTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = c.Disconnect(id) }()

	if writeDescUUID != "" {
		if err := c.WriteDescriptor(ctx, id, args[1], args[2], writeDescUUID, data); err != nil {
			return err
		}
	} else {
		if err := c.WriteCharacteristic(ctx, id, args[1], args[2], data, writeNoResponse); err != nil {
			return err
		}
	}

	fmt.Printf("Wrote %d byte(s)\n", len(data))
	return nil
}
