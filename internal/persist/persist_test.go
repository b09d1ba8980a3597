package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const devicesFixture = `
ESPHome.0199a2c3-0ed1-7665-9d18-8c81901f8e5d = Kitchen Pantry
ESPHome.0199a2c3-58b4-76a9-9193-8f13beafcbe9 = Bar A
ESPHome.0199a2c3-4921-75b5-b7ca-205a00f5d03f = Kitchen Sink
`

func TestLoadDevicesParsesFloeAndLocalID(t *testing.T) {
	got, err := LoadDevices([]byte(devicesFixture))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, DeviceName{
		Device: DeviceRef{FloeID: "ESPHome", LocalID: "0199a2c3-0ed1-7665-9d18-8c81901f8e5d"},
		Name:   "Kitchen Pantry",
	}, got[0])
	assert.Equal(t, "Bar A", got[1].Name)
}

func TestLoadDevicesRejectsMissingDelimiter(t *testing.T) {
	_, err := LoadDevices([]byte("not-a-dotted-key = Something\n"))
	assert.Error(t, err)
}

func TestLoadDevicesRejectsDuplicateID(t *testing.T) {
	data := []byte(`
ESPHome.abc = First
ESPHome.abc = Second
`)
	_, err := LoadDevices(data)
	assert.Error(t, err)
}

func TestLoadDevicesCollapsesInteriorWhitespace(t *testing.T) {
	data := []byte("ESPHome.abc =   Kitchen    Pantry  \n")
	got, err := LoadDevices(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kitchen Pantry", got[0].Name)
}

func TestWriteDevicesRoundTrips(t *testing.T) {
	in := []DeviceName{
		{Device: DeviceRef{FloeID: "ESPHome", LocalID: "one"}, Name: "Kitchen Pantry"},
		{Device: DeviceRef{FloeID: "ESPHome", LocalID: "two"}, Name: "Bar A"},
	}
	data, err := WriteDevices(in)
	require.NoError(t, err)

	out, err := LoadDevices(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

const zonesFixture = `
# comment
[550e8400-e29b-41d4-a716-446655440000]
name = Living Room
device = ESPHome.0199a2c3-0ed1-7665-9d18-8c81901f8e5d
device = ESPHome.0199a2c3-4921-75b5-b7ca-205a00f5d03f

[660e8400-e29b-41d4-a716-446655440001]
name = Kitchen
device = ESPHome.0199a2c3-58b4-76a9-9193-8f13beafcbe9
disabled = true
`

func TestLoadZonesParsesSectionsAndRepeatableDevices(t *testing.T) {
	got, err := LoadZones([]byte(zonesFixture))
	require.NoError(t, err)
	require.Len(t, got, 2)

	living := got[0]
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", living.ZoneID)
	assert.Equal(t, "Living Room", living.Name)
	assert.False(t, living.Disabled)
	assert.ElementsMatch(t, []DeviceRef{
		{FloeID: "ESPHome", LocalID: "0199a2c3-0ed1-7665-9d18-8c81901f8e5d"},
		{FloeID: "ESPHome", LocalID: "0199a2c3-4921-75b5-b7ca-205a00f5d03f"},
	}, living.Devices)

	kitchen := got[1]
	assert.Equal(t, "Kitchen", kitchen.Name)
	assert.True(t, kitchen.Disabled)
	assert.Equal(t, []DeviceRef{{FloeID: "ESPHome", LocalID: "0199a2c3-58b4-76a9-9193-8f13beafcbe9"}}, kitchen.Devices)
}

func TestLoadZonesRejectsMissingName(t *testing.T) {
	data := []byte(`
[some-zone]
device = ESPHome.abc
`)
	_, err := LoadZones(data)
	assert.Error(t, err)
}

func TestLoadZonesRejectsDuplicateZoneID(t *testing.T) {
	data := []byte(`
[dup]
name = First

[dup]
name = Second
`)
	_, err := LoadZones(data)
	assert.Error(t, err)
}

func TestLoadZonesRejectsMalformedDeviceRef(t *testing.T) {
	data := []byte(`
[some-zone]
name = Some Zone
device = not-dotted
`)
	_, err := LoadZones(data)
	assert.Error(t, err)
}

func TestWriteZonesRoundTrips(t *testing.T) {
	in := []Zone{
		{
			ZoneID: "zone-1",
			Name:   "Living Room",
			Devices: []DeviceRef{
				{FloeID: "ESPHome", LocalID: "one"},
				{FloeID: "ESPHome", LocalID: "two"},
			},
		},
		{
			ZoneID:   "zone-2",
			Name:     "Kitchen",
			Devices:  []DeviceRef{{FloeID: "ESPHome", LocalID: "three"}},
			Disabled: true,
		},
	}
	data, err := WriteZones(in)
	require.NoError(t, err)

	out, err := LoadZones(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
