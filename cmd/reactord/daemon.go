// Package main implements reactord, the daemon hosting one Engine: a
// device tree, its dispatcher, and the client manager that serves
// subscriptions. Transport (however a client actually reaches this
// process) is out of scope here, same as in the core itself; reactord's
// own job is bootstrap, persistence load, and metrics/logging.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomazk/envcfg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brightgate-labs/reactor/internal/clientmgr"
	"github.com/brightgate-labs/reactor/internal/engine"
	"github.com/brightgate-labs/reactor/internal/history"
	"github.com/brightgate-labs/reactor/internal/persist"
	"github.com/brightgate-labs/reactor/internal/tree"
)

const pname = "reactord"

var environ struct {
	PrometheusAddr string `envcfg:"REACTORD_PROMETHEUS_ADDR"`
	DevicesFile    string `envcfg:"REACTORD_DEVICES_FILE"`
	ZonesFile      string `envcfg:"REACTORD_ZONES_FILE"`
	HistoryDir     string `envcfg:"REACTORD_HISTORY_DIR"`
	ClientQueueLen int    `envcfg:"REACTORD_CLIENT_QUEUE_LEN"`
	ClientSendMs   int    `envcfg:"REACTORD_CLIENT_SEND_TIMEOUT_MS"`
	HistoryMinMs   int    `envcfg:"REACTORD_HISTORY_MIN_INTERVAL_MS"`
	LogLevel       string `envcfg:"REACTORD_LOG_LEVEL"`
}

var devFlag = flag.Bool("dev", false, "run with development (console) logging regardless of environ")

func setupLogs() (*zap.Logger, *zap.SugaredLogger) {
	var cfg zap.Config
	if *devFlag || environ.LogLevel == "dev" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if environ.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(environ.LogLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	log, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("can't build zap logger: %v", err))
	}
	return log.Named(pname), log.Named(pname).Sugar()
}

// loadPersisted restores a prior run's devices and zones. The devices file
// is the source of device *existence* at boot, ahead of any floe
// reconnecting: CreateDevice's ownerID lookup is a no-op until the matching
// extension later attaches (internal/tree.AttachExtension retroactively
// binds owner_ref on exactly this kind of pre-existing device), so devices
// restored here simply wait to be claimed. Zone membership is resolved
// against the device-ref map built while restoring devices; a zone member
// this run never saw a devices-file row for is logged and skipped rather
// than failing the whole load.
func loadPersisted(e *engine.Engine, log *zap.SugaredLogger) {
	byRef := make(map[persist.DeviceRef]tree.DeviceID)

	if environ.DevicesFile != "" {
		data, err := os.ReadFile(environ.DevicesFile)
		if err != nil {
			log.Warnw("no devices file loaded", "path", environ.DevicesFile, "err", err)
		} else {
			names, err := persist.LoadDevices(data)
			if err != nil {
				log.Fatalw("devices file malformed", "path", environ.DevicesFile, "err", err)
			}
			for _, n := range names {
				did := e.CreateDevice(n.Name, n.Device.FloeID)
				byRef[n.Device] = did
				log.Debugw("restored device", "device", did, "floe", n.Device.FloeID, "local_id", n.Device.LocalID, "name", n.Name)
			}
		}
	}

	if environ.ZonesFile == "" {
		return
	}
	data, err := os.ReadFile(environ.ZonesFile)
	if err != nil {
		log.Warnw("no zones file loaded", "path", environ.ZonesFile, "err", err)
		return
	}
	zones, err := persist.LoadZones(data)
	if err != nil {
		log.Fatalw("zones file malformed", "path", environ.ZonesFile, "err", err)
	}
	for _, z := range zones {
		zid := e.CreateZone(z.Name)
		if err := e.SetZoneDisabled(zid, z.Disabled); err != nil {
			log.Warnw("failed to set zone disabled", "zone", zid, "err", err)
		}
		for _, ref := range z.Devices {
			did, ok := byRef[ref]
			if !ok {
				log.Warnw("zone member not found in devices file, skipping", "zone", zid, "device", ref)
				continue
			}
			if err := e.ZoneAddDevice(zid, did); err != nil {
				log.Warnw("failed to add zone member", "zone", zid, "device", did, "err", err)
			}
		}
		log.Debugw("restored zone", "zone", zid, "name", z.Name, "devices", len(z.Devices))
	}
}

func mustHistoryAppender(log *zap.SugaredLogger) history.Appender {
	if environ.HistoryDir == "" {
		return history.Noop{}
	}
	a, err := history.NewFileAppender(environ.HistoryDir, uint32(environ.HistoryMinMs), nil)
	if err != nil {
		log.Fatalw("failed to open history directory", "dir", environ.HistoryDir, "err", err)
	}
	return a
}

func serveMetrics(reg *prometheus.Registry, addr string, log *zap.SugaredLogger) {
	if addr == "" {
		log.Warn("prometheus disabled")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Infow("prometheus listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnw("prometheus listener failed", "err", err)
	}
}

func main() {
	flag.Parse()
	if err := envcfg.Unmarshal(&environ); err != nil {
		fmt.Fprintf(os.Stderr, "environment error: %s\n", err)
		os.Exit(1)
	}

	log, slog := setupLogs()
	defer log.Sync()

	slog.Infow(pname+" starting", "args", os.Args)

	if environ.ClientQueueLen == 0 {
		environ.ClientQueueLen = 64
	}
	if environ.ClientSendMs == 0 {
		environ.ClientSendMs = 200
	}

	reg := prometheus.NewRegistry()
	if err := clientmgr.Register(reg); err != nil {
		slog.Fatalw("failed to register clientmgr metrics", "err", err)
	}
	if err := engine.Register(reg); err != nil {
		slog.Fatalw("failed to register engine metrics", "err", err)
	}

	historian := mustHistoryAppender(slog)
	defer historian.Close()

	e := engine.New(environ.ClientQueueLen, time.Duration(environ.ClientSendMs)*time.Millisecond, slog,
		engine.WithHistory(historian))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	loadPersisted(e, slog)

	go serveMetrics(reg, environ.PrometheusAddr, slog)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Infow("signal received, stopping", "signal", s.String())
	cancel()
	<-done
}
