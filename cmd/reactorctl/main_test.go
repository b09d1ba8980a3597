package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/persist"
)

func fakeCmd(zones, devices string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("devices-file", "d", devices, "")
	cmd.Flags().StringP("zones-file", "z", zones, "")
	return cmd
}

func TestNewZoneCreatesFileIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	cmd := fakeCmd(path, "")

	require.NoError(t, newZone(cmd, []string{"zone-1", "Living Room"}))

	zones, err := readZones(path)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "zone-1", zones[0].ZoneID)
	assert.Equal(t, "Living Room", zones[0].Name)
}

func TestNewZoneRejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	require.NoError(t, writeZones(path, []persist.Zone{{ZoneID: "zone-1", Name: "Existing"}}))
	cmd := fakeCmd(path, "")

	err := newZone(cmd, []string{"zone-1", "Another"})
	assert.Error(t, err)
}

func TestZoneAddAndRemoveDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	require.NoError(t, writeZones(path, []persist.Zone{{ZoneID: "zone-1", Name: "Living Room"}}))
	cmd := fakeCmd(path, "")

	require.NoError(t, zoneAddDevice(cmd, []string{"zone-1", "ESPHome.abc"}))
	zones, err := readZones(path)
	require.NoError(t, err)
	require.Len(t, zones[0].Devices, 1)
	assert.Equal(t, persist.DeviceRef{FloeID: "ESPHome", LocalID: "abc"}, zones[0].Devices[0])

	require.NoError(t, zoneAddDevice(cmd, []string{"zone-1", "ESPHome.abc"}))
	zones, err = readZones(path)
	require.NoError(t, err)
	assert.Len(t, zones[0].Devices, 1, "adding the same device twice must not duplicate it")

	require.NoError(t, zoneRemoveDevice(cmd, []string{"zone-1", "ESPHome.abc"}))
	zones, err = readZones(path)
	require.NoError(t, err)
	assert.Empty(t, zones[0].Devices)
}

func TestZoneRemoveDeviceUnknownZoneErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	require.NoError(t, writeZones(path, nil))
	cmd := fakeCmd(path, "")

	err := zoneRemoveDevice(cmd, []string{"missing-zone", "ESPHome.abc"})
	assert.Error(t, err)
}

func TestSetZoneDisabledTogglesFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	require.NoError(t, writeZones(path, []persist.Zone{{ZoneID: "zone-1", Name: "Living Room"}}))
	cmd := fakeCmd(path, "")

	require.NoError(t, setZoneDisabled(true)(cmd, []string{"zone-1"}))
	zones, err := readZones(path)
	require.NoError(t, err)
	assert.True(t, zones[0].Disabled)

	require.NoError(t, setZoneDisabled(false)(cmd, []string{"zone-1"}))
	zones, err = readZones(path)
	require.NoError(t, err)
	assert.False(t, zones[0].Disabled)
}

func TestRmZoneRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones")
	require.NoError(t, writeZones(path, []persist.Zone{
		{ZoneID: "zone-1", Name: "Living Room"},
		{ZoneID: "zone-2", Name: "Kitchen"},
	}))
	cmd := fakeCmd(path, "")

	require.NoError(t, rmZone(cmd, []string{"zone-1"}))
	zones, err := readZones(path)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "zone-2", zones[0].ZoneID)
}

func TestParseDeviceRefRejectsMissingDelimiter(t *testing.T) {
	_, err := parseDeviceRef("not-dotted")
	assert.Error(t, err)
}

func TestReadDevicesRequiresPath(t *testing.T) {
	_, err := readDevices("")
	assert.Error(t, err)
}

func TestListDevicesReadsFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices")
	require.NoError(t, os.WriteFile(path, []byte("ESPHome.one = Kitchen Pantry\n"), 0o644))
	cmd := fakeCmd("", path)

	require.NoError(t, listDevices(cmd, nil))
}
