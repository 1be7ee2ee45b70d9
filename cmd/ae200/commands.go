package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zberg/go-ae200/internal/store"
	"github.com/zberg/go-ae200/pkg/ae200"
)

var (
	timeout       time.Duration
	noCompression bool
	logLevel      string
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for each controller request")
	rootCmd.PersistentFlags().BoolVar(&noCompression, "no-compression", false, "Disable permessage-deflate")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover AE-200 controllers on the network",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Discovering controllers...")
		results, err := ae200.Discover(cmd.Context(), getClient())
		if err != nil {
			fmt.Printf("Error discovering: %v\n", err)
			return
		}

		if len(results) == 0 {
			fmt.Println("No controllers found.")
			return
		}

		for _, res := range results {
			fmt.Printf("Found controller at: %s (%d groups)\n", res.IP, len(res.Groups))
			for _, g := range res.Groups {
				fmt.Printf("  Group %s: %s\n", g.ID, g.Name)
			}
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <address> [group]",
	Short: "Show status of groups",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := getClient()

		var devices []*ae200.Device
		if len(args) == 2 {
			devices = []*ae200.Device{getDevice(ctx, client, args[0], args[1])}
		} else {
			var err error
			devices, err = ae200.NewController(client, args[0]).ListDevices(ctx)
			if err != nil {
				fmt.Printf("Error listing devices: %v\n", err)
				os.Exit(1)
			}
		}

		for _, d := range devices {
			printStatus(ctx, d)
		}
	},
}

var setCmd = &cobra.Command{
	Use:   "set <address> <group>",
	Short: "Control a group",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		powerStr, _ := cmd.Flags().GetString("power")
		modeStr, _ := cmd.Flags().GetString("mode")
		fanStr, _ := cmd.Flags().GetString("fan")
		temp, _ := cmd.Flags().GetFloat64("temp")

		powerStr = strings.ToLower(powerStr)
		if powerStr != "" && powerStr != "on" && powerStr != "off" {
			fmt.Printf("Invalid power state '%s': must be on or off\n", powerStr)
			os.Exit(1)
		}
		mode := strings.ToUpper(modeStr)
		switch mode {
		case "", ae200.ModeHeat, ae200.ModeDry, ae200.ModeCool, ae200.ModeFan, ae200.ModeAuto:
		default:
			fmt.Printf("Invalid mode '%s': must be heat, dry, cool, fan or auto\n", modeStr)
			os.Exit(1)
		}
		fan := strings.ToUpper(fanStr)
		switch fan {
		case "", ae200.FanAuto, ae200.FanLow, ae200.FanMid2, ae200.FanMid1, ae200.FanHigh:
		default:
			fmt.Printf("Invalid fan speed '%s': must be auto, low, mid2, mid1 or high\n", fanStr)
			os.Exit(1)
		}

		ctx := cmd.Context()
		d := getDevice(ctx, getClient(), args[0], args[1])

		var err error
		switch powerStr {
		case "on":
			err = d.PowerOn(ctx)
		case "off":
			err = d.PowerOff(ctx)
		}
		if err == nil && mode != "" {
			err = d.SetMode(ctx, mode)
		}
		if err == nil && fan != "" {
			err = d.SetFanSpeed(ctx, fan)
		}
		if err == nil && cmd.Flags().Changed("temp") {
			if err := checkTemperature(ctx, d, temp); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			err = d.SetTemperature(ctx, temp)
		}

		if err != nil {
			fmt.Printf("Error controlling group: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Command sent successfully.")
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List device snapshots stored by the bridge",
	Run: func(cmd *cobra.Command, args []string) {
		dbPath, _ := cmd.Flags().GetString("db")
		controllerID, _ := cmd.Flags().GetString("controller")

		db, err := store.NewBoltStore(dbPath)
		if err != nil {
			fmt.Printf("Error opening %s: %v\n", dbPath, err)
			os.Exit(1)
		}
		defer db.Close()

		snaps, err := db.ListSnapshots(controllerID)
		if err != nil {
			fmt.Printf("Error listing snapshots: %v\n", err)
			os.Exit(1)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots stored.")
			return
		}
		for _, s := range snaps {
			fmt.Printf("%s/%s %s (%s)\n", s.ControllerID, s.DeviceID, s.Name, s.FetchedAt.Format(time.RFC3339))
			fmt.Printf("  %v\n", map[string]string(s.Attributes))
		}
	},
}

func init() {
	setCmd.Flags().String("power", "", "Power state (on, off)")
	setCmd.Flags().String("mode", "", "Mode (heat, dry, cool, fan, auto)")
	setCmd.Flags().String("fan", "", "Fan speed (auto, low, mid2, mid1, high)")
	setCmd.Flags().Float64("temp", 0, "Temperature setpoint")

	snapshotsCmd.Flags().String("db", "ae200.db", "Path to the bridge database")
	snapshotsCmd.Flags().String("controller", "", "Only show snapshots of this controller id")
}

func getClient() *ae200.Client {
	opts := []ae200.ClientOption{
		ae200.WithCompression(!noCompression),
		ae200.WithLogger(newLogger(logLevel, "text")),
	}
	if timeout > 0 {
		opts = append(opts, ae200.WithTimeout(timeout))
	}

	client, err := ae200.NewClient(opts...)
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		os.Exit(1)
	}
	return client
}

// getDevice looks up the group name and fetches the device.
func getDevice(ctx context.Context, client *ae200.Client, address, group string) *ae200.Device {
	records, err := ae200.NewController(client, address).Records(ctx)
	if err != nil {
		fmt.Printf("Error listing groups of %s: %v\n", address, err)
		os.Exit(1)
	}

	name := ""
	found := false
	for _, r := range records {
		if r.ID == group {
			name, found = r.Name, true
			break
		}
	}
	if !found {
		fmt.Printf("Group %s not found on %s\n", group, address)
		os.Exit(1)
	}

	d, err := ae200.NewDevice(ctx, client, address, group, name)
	if err != nil {
		fmt.Printf("Error reading group %s: %v\n", group, err)
		os.Exit(1)
	}
	return d
}

type temperatureBounds interface {
	MinTemp(ctx context.Context) (float64, error)
	MaxTemp(ctx context.Context) (float64, error)
}

// checkTemperature rejects a setpoint outside the bounds of the current mode.
func checkTemperature(ctx context.Context, d temperatureBounds, temp float64) error {
	minTemp, err := d.MinTemp(ctx)
	if err != nil {
		return fmt.Errorf("read minimum temperature: %w", err)
	}
	maxTemp, err := d.MaxTemp(ctx)
	if err != nil {
		return fmt.Errorf("read maximum temperature: %w", err)
	}
	if temp < minTemp || temp > maxTemp {
		return fmt.Errorf("temperature %.1f is outside %.1f-%.1f for the current mode", temp, minTemp, maxTemp)
	}
	return nil
}

func printStatus(ctx context.Context, d *ae200.Device) {
	on, err := d.IsPowerOn(ctx)
	if err != nil {
		fmt.Printf("Group %s (%s): error: %v\n", d.ID(), d.Name(), err)
		return
	}
	powerStr := "OFF"
	if on {
		powerStr = "ON"
	}
	mode, _ := d.Mode(ctx)
	fan, _, _ := d.FanSpeed(ctx)
	minTemp, _ := d.MinTemp(ctx)
	maxTemp, _ := d.MaxTemp(ctx)

	fmt.Printf("Group %s (%s): Power=%s, Mode=%s, Temp=%s, Setpoint=%s, Fan=%s, Range=%.1f-%.1f\n",
		d.ID(), d.Name(), powerStr, mode,
		formatTemp(d.RoomTemperature(ctx)), formatTemp(d.Temperature(ctx)),
		fan, minTemp, maxTemp)
}

func formatTemp(v float64, ok bool, err error) string {
	if err != nil || !ok {
		return "?"
	}
	return fmt.Sprintf("%.1f", v)
}
