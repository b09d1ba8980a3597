// Package main implements reactorctl, an operator CLI over the two files
// internal/persist owns: the devices name table and the zones file. It
// administers those files directly rather than talking to a running
// reactord, the way cl-reg administers its registry database directly
// rather than through a running cl.configd.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tomazk/envcfg"

	"github.com/brightgate-labs/reactor/internal/persist"
)

var environ struct {
	DevicesFile string `envcfg:"REACTORCTL_DEVICES_FILE"`
	ZonesFile   string `envcfg:"REACTORCTL_ZONES_FILE"`
}

func silenceUsage(cmd *cobra.Command, args []string) {
	cmd.SilenceUsage = true
}

func devicesPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("devices-file")
	if p != "" {
		return p
	}
	return environ.DevicesFile
}

func zonesPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("zones-file")
	if p != "" {
		return p
	}
	return environ.ZonesFile
}

func readDevices(path string) ([]persist.DeviceName, error) {
	if path == "" {
		return nil, fmt.Errorf("no devices file given (set -d or REACTORCTL_DEVICES_FILE)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return persist.LoadDevices(data)
}

func readZones(path string) ([]persist.Zone, error) {
	if path == "" {
		return nil, fmt.Errorf("no zones file given (set -z or REACTORCTL_ZONES_FILE)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return persist.LoadZones(data)
}

func writeZones(path string, zones []persist.Zone) error {
	data, err := persist.WriteZones(zones)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseDeviceRef(s string) (persist.DeviceRef, error) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return persist.DeviceRef{}, fmt.Errorf("device ref %q must be <floe_id>.<local_id>", s)
	}
	return persist.DeviceRef{FloeID: s[:i], LocalID: s[i+1:]}, nil
}

func listDevices(cmd *cobra.Command, args []string) error {
	devices, err := readDevices(devicesPath(cmd))
	if err != nil {
		return err
	}
	for _, d := range devices {
		fmt.Printf("%-12s %-38s %s\n", d.Device.FloeID, d.Device.LocalID, d.Name)
	}
	return nil
}

func listZones(cmd *cobra.Command, args []string) error {
	zones, err := readZones(zonesPath(cmd))
	if err != nil {
		return err
	}
	for _, z := range zones {
		status := "enabled"
		if z.Disabled {
			status = "disabled"
		}
		fmt.Printf("%-20s %-20s %-8s devices=%d\n", z.ZoneID, z.Name, status, len(z.Devices))
	}
	return nil
}

func newZone(cmd *cobra.Command, args []string) error {
	path := zonesPath(cmd)
	if path == "" {
		return fmt.Errorf("no zones file given (set -z or REACTORCTL_ZONES_FILE)")
	}
	var zones []persist.Zone
	if _, err := os.Stat(path); err == nil {
		zones, err = readZones(path)
		if err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	zoneID, name := args[0], args[1]
	for _, z := range zones {
		if z.ZoneID == zoneID {
			return fmt.Errorf("zone %q already exists", zoneID)
		}
	}
	zones = append(zones, persist.Zone{ZoneID: zoneID, Name: name})
	return writeZones(path, zones)
}

func rmZone(cmd *cobra.Command, args []string) error {
	path := zonesPath(cmd)
	zones, err := readZones(path)
	if err != nil {
		return err
	}
	zoneID := args[0]
	out := zones[:0]
	found := false
	for _, z := range zones {
		if z.ZoneID == zoneID {
			found = true
			continue
		}
		out = append(out, z)
	}
	if !found {
		return fmt.Errorf("zone %q not found", zoneID)
	}
	return writeZones(path, out)
}

func setZoneDisabled(disabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path := zonesPath(cmd)
		zones, err := readZones(path)
		if err != nil {
			return err
		}
		zoneID := args[0]
		for i := range zones {
			if zones[i].ZoneID == zoneID {
				zones[i].Disabled = disabled
				return writeZones(path, zones)
			}
		}
		return fmt.Errorf("zone %q not found", zoneID)
	}
}

func zoneAddDevice(cmd *cobra.Command, args []string) error {
	path := zonesPath(cmd)
	zones, err := readZones(path)
	if err != nil {
		return err
	}
	zoneID := args[0]
	ref, err := parseDeviceRef(args[1])
	if err != nil {
		return err
	}
	for i := range zones {
		if zones[i].ZoneID != zoneID {
			continue
		}
		for _, d := range zones[i].Devices {
			if d == ref {
				return nil
			}
		}
		zones[i].Devices = append(zones[i].Devices, ref)
		return writeZones(path, zones)
	}
	return fmt.Errorf("zone %q not found", zoneID)
}

func zoneRemoveDevice(cmd *cobra.Command, args []string) error {
	path := zonesPath(cmd)
	zones, err := readZones(path)
	if err != nil {
		return err
	}
	zoneID := args[0]
	ref, err := parseDeviceRef(args[1])
	if err != nil {
		return err
	}
	for i := range zones {
		if zones[i].ZoneID != zoneID {
			continue
		}
		kept := zones[i].Devices[:0]
		for _, d := range zones[i].Devices {
			if d != ref {
				kept = append(kept, d)
			}
		}
		zones[i].Devices = kept
		return writeZones(path, zones)
	}
	return fmt.Errorf("zone %q not found", zoneID)
}

func main() {
	if err := envcfg.Unmarshal(&environ); err != nil {
		fmt.Fprintf(os.Stderr, "environment error: %s\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:              "reactorctl",
		Short:            "Administer a reactor core's persisted devices and zones",
		PersistentPreRun: silenceUsage,
	}
	rootCmd.PersistentFlags().StringP("devices-file", "d", "", "devices file path")
	rootCmd.PersistentFlags().StringP("zones-file", "z", "", "zones file path")

	devicesCmd := &cobra.Command{Use: "devices", Short: "Administer the devices name table"}
	devicesCmd.AddCommand(&cobra.Command{
		Use: "list", Aliases: []string{"ls"}, Args: cobra.NoArgs,
		Short: "List persisted devices", RunE: listDevices,
	})
	rootCmd.AddCommand(devicesCmd)

	zonesCmd := &cobra.Command{Use: "zones", Short: "Administer zones"}
	zonesCmd.AddCommand(&cobra.Command{
		Use: "list", Aliases: []string{"ls"}, Args: cobra.NoArgs,
		Short: "List persisted zones", RunE: listZones,
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "new <zone-id> <name>", Args: cobra.ExactArgs(2),
		Short: "Create a new zone", RunE: newZone,
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "rm <zone-id>", Args: cobra.ExactArgs(1),
		Short: "Delete a zone", RunE: rmZone,
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "enable <zone-id>", Args: cobra.ExactArgs(1),
		Short: "Clear a zone's disabled flag", RunE: setZoneDisabled(false),
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "disable <zone-id>", Args: cobra.ExactArgs(1),
		Short: "Set a zone's disabled flag", RunE: setZoneDisabled(true),
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "add-device <zone-id> <floe_id.local_id>", Args: cobra.ExactArgs(2),
		Short: "Add a device to a zone", RunE: zoneAddDevice,
	})
	zonesCmd.AddCommand(&cobra.Command{
		Use: "rm-device <zone-id> <floe_id.local_id>", Args: cobra.ExactArgs(2),
		Short: "Remove a device from a zone", RunE: zoneRemoveDevice,
	})
	rootCmd.AddCommand(zonesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
