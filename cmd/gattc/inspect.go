package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect a device's GATT profile",
	Long: `Connect to a BLE device and enumerate its full GATT hierarchy:
services, characteristics with their property flags, and descriptors.

Example:
  gattc inspect aa:bb:cc:dd:ee:ff`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectServices []string
	inspectTimeout  time.Duration
	inspectVerbose  bool
)

func init() {
	inspectCmd.Flags().StringSliceVarP(&inspectServices, "services", "s", nil, "Only inspect these service UUIDs")
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second, "Discovery scan timeout")
	inspectCmd.Flags().BoolVar(&inspectVerbose, "verbose", false, "Verbose logging")
}

func runInspect(cmd *cobra.Command, args []string) error {
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

	id, err := connectByAddress(ctx, c, args[0], inspectTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = c.Disconnect(id) }()

	services, err := c.DiscoverServices(ctx, id, inspectServices)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	fmt.Printf("Device %s\n\n", args[0])
	for _, svc := range services {
		fmt.Printf("%s %s\n", bold.Sprintf("service %s", svc.UUID), dim.Sprint(annotate(svc.KnownName)))

		chars, err := c.DiscoverCharacteristics(ctx, id, svc.UUID, nil)
		if err != nil {
			return err
		}
		for _, ch := range chars {
			props := strings.Join(ch.Properties.Names(), ",")
			fmt.Printf("  characteristic %s [%s] %s\n", ch.UUID, props, dim.Sprint(annotate(ch.KnownName)))

			descs, err := c.DiscoverDescriptors(ctx, id, svc.UUID, ch.UUID)
			if err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Printf("    descriptor %s %s\n", d.UUID, dim.Sprint(annotate(d.KnownName)))
			}
		}
		fmt.Println()
	}
	return nil
}

// annotate renders an assigned-number name as a parenthesized note.
func annotate(name string) string {
	if name == "" {
		return ""
	}
	return "(" + name + ")"
}
