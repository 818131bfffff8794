package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blekit/gattc/internal/central"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service-uuid> <char-uuid>",
	Short: "Stream characteristic notifications",
	Long: `Subscribe to a characteristic and print every notification until
interrupted with Ctrl+C.

Examples:
  # Stream heart rate measurements
  gattc subscribe aa:bb:cc:dd:ee:ff 180d 2a37

  # Hex output with timestamps
  gattc subscribe aa:bb:cc:dd:ee:ff 180d 2a37 --hex --timestamps`,
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeHex        bool
	subscribeTimestamps bool
	subscribeTimeout    time.Duration
	subscribeVerbose    bool
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex strings; raw bytes by default")
	subscribeCmd.Flags().BoolVar(&subscribeTimestamps, "timestamps", false, "Prefix each value with the arrival time")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 30*time.Second, "Discovery scan timeout")
	subscribeCmd.Flags().BoolVar(&subscribeVerbose, "verbose", false, "Verbose logging")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
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

	id, err := connectByAddress(ctx, c, args[0], subscribeTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = c.Disconnect(id) }()

	if err := c.SetNotify(ctx, id, args[1], args[2], true); err != nil {
		return err
	}
	fmt.Println("Subscribed, waiting for notifications (Ctrl+C to stop)...")

	for {
		select {
		case ev := <-c.Events():
			r, ok := ev.(central.ReadEvent)
			if !ok || !r.IsNotification {
				continue
			}
			printValue(r.Data)
		case <-ctx.Done():
			// Best effort: the link may already be gone on Ctrl+C.
			offCtx, offCancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = c.SetNotify(offCtx, id, args[1], args[2], false)
			offCancel()
			return nil
		}
	}
}

func printValue(data []byte) {
	if subscribeTimestamps {
		fmt.Printf("[%s] ", time.Now().Format(time.RFC3339))
	}
	if subscribeHex {
		fmt.Println(hex.EncodeToString(data))
		return
	}
	fmt.Printf("%s\n", data)
}
