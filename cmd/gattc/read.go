package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service-uuid> <char-uuid>",
	Short: "Read a characteristic or descriptor value",
	Long: `Read data from a BLE characteristic or descriptor.

Examples:
  # Read Battery Level
  gattc read aa:bb:cc:dd:ee:ff 180f 2a19

  # Read the Client Characteristic Configuration descriptor
  gattc read aa:bb:cc:dd:ee:ff 180d 2a37 --desc 2902

  # Output as hex
  gattc read aa:bb:cc:dd:ee:ff 180f 2a19 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readDescUUID string
	readHex      bool
	readTimeout  time.Duration
	readVerbose  bool
)

func init() {
	readCmd.Flags().StringVar(&readDescUUID, "desc", "", "Descriptor UUID (reads descriptor instead of characteristic)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string; raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 30*time.Second, "Discovery scan timeout")
	readCmd.Flags().BoolVar(&readVerbose, "verbose", false, "Verbose logging")
}

func runRead(cmd *cobra.Command, args []string) error {
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

	id, err := connectByAddress(ctx, c, args[0], readTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = c.Disconnect(id) }()

	var data []byte
	if readDescUUID != "" {
		data, err = c.ReadDescriptor(ctx, id, args[1], args[2], readDescUUID)
	} else {
		data, err = c.ReadCharacteristic(ctx, id, args[1], args[2])
	}
	if err != nil {
		return err
	}

	if readHex {
		fmt.Println(hex.EncodeToString(data))
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}
