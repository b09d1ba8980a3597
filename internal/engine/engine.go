// Package engine implements the single-threaded cooperative scheduler (spec
// §5): one goroutine owns the device tree, the dispatcher, and every
// client's queue, so that dispatch is always atomic with the tree mutation
// that triggered it. Extension I/O and client I/O run on their own
// goroutines and reach the engine only through its mailbox.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brightgate-labs/reactor/internal/clientmgr"
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/dispatch"
	"github.com/brightgate-labs/reactor/internal/history"
	"github.com/brightgate-labs/reactor/internal/optimize"
	"github.com/brightgate-labs/reactor/internal/qexec"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/subindex"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// job is one unit of work submitted to the engine's mailbox. Every exported
// Engine method builds one and blocks on its completion signal, presenting a
// synchronous API to callers while every mutation, query, and subscription
// change is actually serialized through Run's single goroutine.
type job struct {
	run  func()
	done chan struct{}
}

// Engine owns the tree, the dispatcher, and the client manager. Only Run's
// goroutine may touch tr/disp/clients directly; every other access goes
// through submit.
type Engine struct {
	tr        *tree.Tree
	disp      *dispatch.Dispatcher
	clients   *clientmgr.Manager
	log       *zap.SugaredLogger
	historian history.Appender

	mailbox chan job
}

// Option configures a new Engine.
type Option func(*Engine)

// WithHistory installs a, called on every successful PutComponent/
// SetComponent (SPEC_FULL supplement 7). Without this option the engine
// uses a history.Noop and history costs nothing.
func WithHistory(a history.Appender) Option {
	return func(e *Engine) { e.historian = a }
}

// New constructs an Engine with the dispatcher wired as the tree's emitter
// and a client manager sized per the given queue capacity and send timeout.
func New(clientQueueCapacity int, clientSendTimeout time.Duration, log *zap.SugaredLogger, opts ...Option) *Engine {
	tr := tree.New()
	disp := dispatch.New(tr)
	tr.SetEmitter(disp)
	e := &Engine{
		tr:        tr,
		disp:      disp,
		clients:   clientmgr.New(clientQueueCapacity, clientSendTimeout, log),
		log:       log,
		historian: history.Noop{},
		mailbox:   make(chan job, 256),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run drains the mailbox until ctx is cancelled. It must be called from
// exactly one goroutine for the Engine's lifetime; that goroutine is the
// "single task" spec §5 describes.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.mailbox:
			j.run()
			close(j.done)
			mailboxDepth.Set(float64(len(e.mailbox)))
		}
	}
}

// submit enqueues fn and blocks until it has executed on the engine
// goroutine. Callers other than Run itself may call this from any
// goroutine; fn must not call back into submit (it would deadlock against
// its own completion).
func (e *Engine) submit(fn func()) {
	j := job{run: fn, done: make(chan struct{})}
	start := time.Now()
	e.mailbox <- j
	<-j.done
	jobLatency.Observe(time.Since(start).Seconds())
}

// --- extension-facing operations (spec §4.2) ---

// AttachExtension binds an extension's sink and returns its live ref.
func (e *Engine) AttachExtension(id string, sink tree.Sink) (tree.ExtensionIndex, error) {
	var idx tree.ExtensionIndex
	var err error
	e.submit(func() { idx, err = e.tr.AttachExtension(id, sink) })
	return idx, err
}

// DetachExtension clears owner_ref on the extension's owned devices and
// frees its slot.
func (e *Engine) DetachExtension(idx tree.ExtensionIndex) error {
	var err error
	e.submit(func() { err = e.tr.DetachExtension(idx) })
	return err
}

// CreateDevice creates a device owned by ownerID.
func (e *Engine) CreateDevice(name, ownerID string) tree.DeviceID {
	var did tree.DeviceID
	e.submit(func() { did = e.tr.CreateDevice(name, ownerID) })
	return did
}

// DeleteDevice tombstones a device.
func (e *Engine) DeleteDevice(did tree.DeviceID) error {
	var err error
	e.submit(func() { err = e.tr.DeleteDevice(did) })
	return err
}

// RenameDevice renames a live device.
func (e *Engine) RenameDevice(did tree.DeviceID, name string) error {
	var err error
	e.submit(func() { err = e.tr.RenameDevice(did, name) })
	return err
}

// RegisterEntity adds a named entity to a device.
func (e *Engine) RegisterEntity(did tree.DeviceID, entityID string) (tree.EntityIndex, error) {
	var eidx tree.EntityIndex
	var err error
	e.submit(func() { eidx, err = e.tr.RegisterEntity(did, entityID) })
	return eidx, err
}

// PutComponent introduces or replaces a component on an entity.
func (e *Engine) PutComponent(did tree.DeviceID, eidx tree.EntityIndex, c component.Component) error {
	var err error
	e.submit(func() {
		if err = e.tr.PutComponent(did, eidx, c); err == nil {
			e.recordHistory(did, eidx, c)
		}
	})
	return err
}

// SetComponent updates an existing component of the same type.
func (e *Engine) SetComponent(did tree.DeviceID, eidx tree.EntityIndex, c component.Component) error {
	var err error
	e.submit(func() {
		if err = e.tr.SetComponent(did, eidx, c); err == nil {
			e.recordHistory(did, eidx, c)
		}
	})
	return err
}

// recordHistory appends c to the configured history.Appender. It runs on
// the engine goroutine, after the mutation it records has already
// committed, and never returns an error to the caller of PutComponent/
// SetComponent: a history write failing must not fail the mutation it
// describes.
func (e *Engine) recordHistory(did tree.DeviceID, eidx tree.EntityIndex, c component.Component) {
	dev, err := e.tr.Device(did)
	if err != nil {
		return
	}
	entities := dev.Entities()
	if int(eidx) < 0 || int(eidx) >= len(entities) {
		return
	}
	entityID := entities[eidx].ID()
	if err := e.historian.Append(did, entityID, c, e.tr.Now()); err != nil {
		e.log.Warnw("history append failed", "device", did, "entity", entityID, "err", err)
	}
}

// RemoveComponent drops a component from an entity.
func (e *Engine) RemoveComponent(did tree.DeviceID, eidx tree.EntityIndex, ct component.ComponentType) error {
	var err error
	e.submit(func() { err = e.tr.RemoveComponent(did, eidx, ct) })
	return err
}

// CreateGroup creates a named, empty group.
func (e *Engine) CreateGroup(name string) tree.GroupID {
	var gid tree.GroupID
	e.submit(func() { gid = e.tr.CreateGroup(name) })
	return gid
}

// DeleteGroup deletes a group.
func (e *Engine) DeleteGroup(gid tree.GroupID) error {
	var err error
	e.submit(func() { err = e.tr.DeleteGroup(gid) })
	return err
}

// RenameGroup renames a group.
func (e *Engine) RenameGroup(gid tree.GroupID, name string) error {
	var err error
	e.submit(func() { err = e.tr.RenameGroup(gid, name) })
	return err
}

// GroupAddDevice adds a device to a group with two-sided consistency.
func (e *Engine) GroupAddDevice(gid tree.GroupID, did tree.DeviceID) error {
	var err error
	e.submit(func() { err = e.tr.GroupAddDevice(gid, did) })
	return err
}

// GroupRemoveDevice removes a device from a group with two-sided
// consistency.
func (e *Engine) GroupRemoveDevice(gid tree.GroupID, did tree.DeviceID) error {
	var err error
	e.submit(func() { err = e.tr.GroupRemoveDevice(gid, did) })
	return err
}

// CreateZone creates a named, empty zone (spec §3: "zones are a user-facing
// layer built on top [of groups] with identical mechanics").
func (e *Engine) CreateZone(name string) tree.ZoneID {
	var zid tree.ZoneID
	e.submit(func() { zid = e.tr.CreateZone(name) })
	return zid
}

// DeleteZone deletes a zone.
func (e *Engine) DeleteZone(zid tree.ZoneID) error {
	var err error
	e.submit(func() { err = e.tr.DeleteZone(zid) })
	return err
}

// RenameZone renames a zone.
func (e *Engine) RenameZone(zid tree.ZoneID, name string) error {
	var err error
	e.submit(func() { err = e.tr.RenameZone(zid, name) })
	return err
}

// SetZoneDisabled sets a zone's disabled flag, persisted verbatim via
// internal/persist's `disabled` key.
func (e *Engine) SetZoneDisabled(zid tree.ZoneID, disabled bool) error {
	var err error
	e.submit(func() { err = e.tr.SetZoneDisabled(zid, disabled) })
	return err
}

// ZoneAddDevice adds a device to a zone with two-sided consistency.
func (e *Engine) ZoneAddDevice(zid tree.ZoneID, did tree.DeviceID) error {
	var err error
	e.submit(func() { err = e.tr.ZoneAddDevice(zid, did) })
	return err
}

// ZoneRemoveDevice removes a device from a zone with two-sided consistency.
func (e *Engine) ZoneRemoveDevice(zid tree.ZoneID, did tree.DeviceID) error {
	var err error
	e.submit(func() { err = e.tr.ZoneRemoveDevice(zid, did) })
	return err
}

// Devices returns every live device's id and name, the shape
// internal/persist's devices file round-trips.
func (e *Engine) Devices() []DeviceInfo {
	var out []DeviceInfo
	e.submit(func() {
		e.tr.IterDevices(func(did tree.DeviceID, d *tree.Device) bool {
			out = append(out, DeviceInfo{ID: did, Name: d.Name()})
			return true
		})
	})
	return out
}

// Zones returns every live zone's full persisted shape: id, name, disabled
// flag, and member device ids.
func (e *Engine) Zones() []ZoneInfo {
	var out []ZoneInfo
	e.submit(func() {
		e.tr.IterZones(func(zid tree.ZoneID, z *tree.Zone) bool {
			out = append(out, ZoneInfo{ID: zid, Name: z.Name(), Disabled: z.Disabled(), Devices: z.Devices()})
			return true
		})
	})
	return out
}

// DeviceInfo is one row of Devices' result.
type DeviceInfo struct {
	ID   tree.DeviceID
	Name string
}

// ZoneInfo is one row of Zones' result.
type ZoneInfo struct {
	ID       tree.ZoneID
	Name     string
	Disabled bool
	Devices  []tree.DeviceID
}

// --- client-facing operations (spec §4.3-§4.9) ---

// Query optimizes and runs a one-shot Get/Set/Count/Snapshot query.
func (e *Engine) Query(q *query.Query) (*qexec.Result, error) {
	optimized := optimize.Query(q)
	var res *qexec.Result
	var err error
	e.submit(func() { res, err = qexec.Exec(e.tr, optimized) })
	return res, err
}

// Connect registers a new client and returns its handle.
func (e *Engine) Connect() *clientmgr.Client {
	var c *clientmgr.Client
	e.submit(func() { c = e.clients.Connect() })
	return c
}

// Disconnect tears down a client and every subscription it owns (spec
// §4.9).
func (e *Engine) Disconnect(id clientmgr.ClientID) {
	e.submit(func() { e.clients.Disconnect(e.disp, id) })
}

// Subscribe optimizes q and registers it as a watcher or observer on c's
// behalf, tagging every resulting update with queryID.
func (e *Engine) Subscribe(q *query.Query, c *clientmgr.Client, queryID uint64) (subindex.SubID, error) {
	optimized := optimize.Query(q)
	var id subindex.SubID
	var err error
	e.submit(func() {
		sender := c.Sender(queryID)
		if optimized.Action.IsWatcher() {
			id, err = e.disp.RegisterWatcher(optimized, sender)
		} else {
			id, err = e.disp.RegisterObserver(optimized, sender)
		}
		if err == nil {
			c.TrackSubscription(id)
		}
	})
	return id, err
}

// Unsubscribe cancels one of c's subscriptions without disconnecting c.
func (e *Engine) Unsubscribe(c *clientmgr.Client, id subindex.SubID) {
	e.submit(func() {
		e.disp.Unregister(id)
		c.UntrackSubscription(id)
	})
}

// Snapshot delivers each pre-resolved update to c using the short, fixed
// initial-snapshot timeout rather than the client's steady-state discipline
// (spec §4.9). Callers build updates by running a Snapshot-action Query and
// converting its result entries; Snapshot itself only owns delivery, so
// those writes still happen on the engine goroutine alongside every other
// client-queue mutation.
func (e *Engine) Snapshot(c *clientmgr.Client, queryID uint64, updates []dispatch.Update) {
	e.submit(func() {
		for _, u := range updates {
			c.SendSnapshot(queryID, u)
		}
	})
}
