// Package persist reads and writes the two INI-shaped text files spec §6
// pins as the core's durable state: a flat devices file (persistent names)
// and a sectioned zones file (the user-facing grouping layer). The core
// itself treats persistence as external (spec §1): this package is the
// thin translation layer between those two files and the plain Go records
// a loader hands the tree at startup, or an observer-driven writer produces
// as structural events arrive.
package persist

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/brightgate-labs/reactor/internal/tree"
)

// DeviceRef names a device by its owning floe and that floe's local id for
// the device, the join key both persisted files key device rows on.
type DeviceRef struct {
	FloeID  string
	LocalID string
}

func (r DeviceRef) String() string { return r.FloeID + "." + r.LocalID }

// DeviceName is one persisted row of the devices file.
type DeviceName struct {
	Device DeviceRef
	Name   string
}

// Zone is one persisted section of the zones file.
type Zone struct {
	ZoneID   string
	Name     string
	Devices  []DeviceRef
	Disabled bool
}

func splitDotted(s string) (DeviceRef, bool) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return DeviceRef{}, false
	}
	return DeviceRef{FloeID: s[:i], LocalID: s[i+1:]}, true
}

// LoadDevices parses the devices file grammar: one `<floe_id>.<device_local_id>
// = <human_name>` line per device, blank lines and `# ...` comments allowed.
// A device id repeated on two lines is an error.
func LoadDevices(data []byte) ([]DeviceName, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, data)
	if err != nil {
		return nil, fmt.Errorf("persist: parsing devices file: %w", err)
	}
	sec := f.Section("")
	out := make([]DeviceName, 0, len(sec.Keys()))
	for _, key := range sec.Keys() {
		ref, ok := splitDotted(key.Name())
		if !ok {
			return nil, fmt.Errorf("persist: devices line %q missing '.' delimiter", key.Name())
		}
		if vals := key.ValueWithShadows(); len(vals) > 1 {
			return nil, fmt.Errorf("persist: device %q duplicated", key.Name())
		}
		out = append(out, DeviceName{Device: ref, Name: tree.NormalizeName(key.Value())})
	}
	return out, nil
}

// WriteDevices serializes devices back into the file grammar LoadDevices
// accepts. This is a full rewrite, not an incremental append: the core's
// own in-memory device-name table is already authoritative by the time
// anything calls this, so there is no "existing file plus one new line" to
// preserve line-for-line.
func WriteDevices(devices []DeviceName) ([]byte, error) {
	f := ini.Empty()
	sec := f.Section("")
	for _, d := range devices {
		if _, err := sec.NewKey(d.Device.String(), d.Name); err != nil {
			return nil, fmt.Errorf("persist: writing device %s: %w", d.Device, err)
		}
	}
	var buf strings.Builder
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

var zoneHeaderRe = regexp.MustCompile(`^\[(.+)\]$`)

// LoadZones parses the zones file grammar: a `[<zone_id>]` section per
// zone with keys `name` (required), repeatable `device`, and optional
// `disabled`. A zone id repeated on two section headers is an error, as is
// a section missing `name`.
func LoadZones(data []byte) ([]Zone, error) {
	if err := checkDuplicateZoneHeaders(data); err != nil {
		return nil, err
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, data)
	if err != nil {
		return nil, fmt.Errorf("persist: parsing zones file: %w", err)
	}

	var out []Zone
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		if !sec.HasKey("name") {
			return nil, fmt.Errorf("persist: zone %q missing name", sec.Name())
		}
		z := Zone{ZoneID: sec.Name(), Name: tree.NormalizeName(sec.Key("name").String())}
		if sec.HasKey("device") {
			for _, raw := range sec.Key("device").ValueWithShadows() {
				ref, ok := splitDotted(strings.TrimSpace(raw))
				if !ok {
					return nil, fmt.Errorf("persist: zone %q device %q missing '.' delimiter", sec.Name(), raw)
				}
				z.Devices = append(z.Devices, ref)
			}
		}
		if sec.HasKey("disabled") {
			disabled, err := sec.Key("disabled").Bool()
			if err != nil {
				return nil, fmt.Errorf("persist: zone %q disabled value: %w", sec.Name(), err)
			}
			z.Disabled = disabled
		}
		out = append(out, z)
	}
	return out, nil
}

// checkDuplicateZoneHeaders catches repeated `[zone_id]` headers before
// handing the file to ini.v1, which otherwise silently merges same-named
// sections rather than rejecting the file.
func checkDuplicateZoneHeaders(data []byte) error {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := zoneHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return fmt.Errorf("persist: zone %q duplicated", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// WriteZones serializes zones back into the file grammar LoadZones accepts.
// As with WriteDevices, this is a full rewrite driven off the core's own
// authoritative zone table.
func WriteZones(zones []Zone) ([]byte, error) {
	f := ini.Empty(ini.LoadOptions{AllowShadows: true})
	for _, z := range zones {
		sec, err := f.NewSection(z.ZoneID)
		if err != nil {
			return nil, fmt.Errorf("persist: writing zone %s: %w", z.ZoneID, err)
		}
		if _, err := sec.NewKey("name", z.Name); err != nil {
			return nil, err
		}
		for _, d := range z.Devices {
			if _, err := sec.NewKey("device", d.String()); err != nil {
				return nil, err
			}
		}
		if z.Disabled {
			if _, err := sec.NewKey("disabled", "true"); err != nil {
				return nil, err
			}
		}
	}
	var buf strings.Builder
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
