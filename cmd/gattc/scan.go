package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blekit/gattc/internal/central"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

This command will scan for BLE devices and display information about
discovered devices, including their names, addresses, RSSI values, and
advertised services.`,
	RunE: runScan,
}

var (
	scanDuration   time.Duration
	scanFormat     string
	scanServices   []string
	scanDuplicates bool
	scanVerbose    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the configured default)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().BoolVar(&scanDuplicates, "allow-duplicates", false, "Deliver duplicate advertisements")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose logging")
}

// scanRow is one discovered device as rendered by the scan output.
type scanRow struct {
	ID           string   `json:"id"`
	Address      string   `json:"address"`
	AddressType  string   `json:"addressType"`
	Name         string   `json:"name,omitempty"`
	RSSI         int16    `json:"rssi"`
	TxPower      *int     `json:"txPower,omitempty"`
	Connectable  *bool    `json:"connectable,omitempty"`
	ServiceUUIDs []string `json:"serviceUUIDs,omitempty"`
	Manufacturer string   `json:"manufacturerData,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format := cfg.OutputFormat
	if scanFormat != "" {
		format = scanFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	duration := cfg.ScanDuration
	if scanDuration > 0 {
		duration = scanDuration
	}

	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	c := newCentral(ctx, cfg, logger)
	defer c.Stop()

	if err := c.StartScanning(scanServices, scanDuplicates || cfg.AllowDuplicates); err != nil {
		return err
	}

	rows := make(map[string]scanRow)
	timeout := time.After(duration)

collect:
	for {
		select {
		case ev := <-c.Events():
			if d, ok := ev.(central.DiscoverEvent); ok {
				rows[d.DeviceID] = discoverToRow(d)
			}
		case <-timeout:
			break collect
		case <-ctx.Done():
			break collect
		}
	}
	_ = c.StopScanning()

	sorted := make([]scanRow, 0, len(rows))
	for _, r := range rows {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RSSI > sorted[j].RSSI
	})

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sorted)
	}

	printScanTable(sorted)
	if ctx.Err() != nil {
		return context.Canceled
	}
	return nil
}

func discoverToRow(d central.DiscoverEvent) scanRow {
	row := scanRow{
		ID:           d.DeviceID,
		Address:      d.Address,
		AddressType:  d.AddressType,
		RSSI:         d.RSSI,
		TxPower:      d.Advert.TxPowerLevel,
		Connectable:  d.Connectable,
		ServiceUUIDs: d.Advert.ServiceUUIDs,
	}
	if d.Advert.LocalName != nil {
		row.Name = *d.Advert.LocalName
	}
	if len(d.Advert.ManufacturerData) > 0 {
		row.Manufacturer = hex.EncodeToString(d.Advert.ManufacturerData)
	}
	return row
}

func printScanTable(rows []scanRow) {
	if len(rows) == 0 {
		fmt.Println("No devices found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := color.New(color.Bold)
	fmt.Fprintln(w, header.Sprint("ADDRESS\tNAME\tRSSI\tTX\tCONN\tSERVICES"))

	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = "-"
		}
		tx := "-"
		if r.TxPower != nil {
			tx = fmt.Sprintf("%d", *r.TxPower)
		}
		conn := "?"
		if r.Connectable != nil {
			if *r.Connectable {
				conn = "yes"
			} else {
				conn = "no"
			}
		}
		services := "-"
		if len(r.ServiceUUIDs) > 0 {
			services = strings.Join(r.ServiceUUIDs, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", r.Address, name, r.RSSI, tx, conn, services)
	}
	w.Flush()
	fmt.Printf("\n%d device(s) found\n", len(rows))
}
