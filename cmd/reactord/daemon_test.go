package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brightgate-labs/reactor/internal/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	e := engine.New(4, time.Second, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	return e
}

func TestLoadPersistedRestoresDevicesAndZoneMembership(t *testing.T) {
	dir := t.TempDir()
	devicesPath := filepath.Join(dir, "devices")
	zonesPath := filepath.Join(dir, "zones")

	require.NoError(t, os.WriteFile(devicesPath, []byte(
		"ESPHome.one = Kitchen Pantry\nESPHome.two = Bar A\n"), 0o644))
	require.NoError(t, os.WriteFile(zonesPath, []byte(
		"[zone-1]\nname = Living Room\ndevice = ESPHome.one\ndevice = ESPHome.two\ndisabled = true\n"), 0o644))

	environ.DevicesFile = devicesPath
	environ.ZonesFile = zonesPath
	defer func() { environ.DevicesFile, environ.ZonesFile = "", "" }()

	e := newTestEngine(t)
	loadPersisted(e, zaptest.NewLogger(t).Sugar())

	devices := e.Devices()
	require.Len(t, devices, 2)

	zones := e.Zones()
	require.Len(t, zones, 1)
	assert.Equal(t, "Living Room", zones[0].Name)
	assert.True(t, zones[0].Disabled)
	assert.Len(t, zones[0].Devices, 2)
}

func TestLoadPersistedSkipsUnknownZoneMember(t *testing.T) {
	dir := t.TempDir()
	zonesPath := filepath.Join(dir, "zones")
	require.NoError(t, os.WriteFile(zonesPath, []byte(
		"[zone-1]\nname = Empty Room\ndevice = ESPHome.missing\n"), 0o644))

	environ.DevicesFile = ""
	environ.ZonesFile = zonesPath
	defer func() { environ.ZonesFile = "" }()

	e := newTestEngine(t)
	loadPersisted(e, zaptest.NewLogger(t).Sugar())

	zones := e.Zones()
	require.Len(t, zones, 1)
	assert.Empty(t, zones[0].Devices)
}

func TestMustHistoryAppenderNoopWithoutDir(t *testing.T) {
	environ.HistoryDir = ""
	a := mustHistoryAppender(zaptest.NewLogger(t).Sugar())
	assert.NoError(t, a.Close())
}

func TestMustHistoryAppenderCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	environ.HistoryDir = dir
	defer func() { environ.HistoryDir = "" }()

	a := mustHistoryAppender(zaptest.NewLogger(t).Sugar())
	defer a.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
