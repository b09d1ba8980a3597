// Package clientmgr implements the client manager (spec §4.9): one bounded
// outbound queue per connected client, a send-timeout discipline for
// delivering watcher/observer updates, and disconnect cleanup that tears
// down every subscription a client owned.
//
// The engine task is the sole producer on every client's queue (spec §5);
// a per-client reader goroutine owned by the transport layer is the sole
// consumer. Manager itself is not safe for concurrent use from more than
// the engine task — the single-threaded cooperative scheduler is what makes
// that safe without locks.
package clientmgr

import (
	"time"

	"go.uber.org/zap"

	"github.com/brightgate-labs/reactor/internal/dispatch"
	"github.com/brightgate-labs/reactor/internal/subindex"
)

// ClientID identifies one connected client for the lifetime of its session.
type ClientID uint64

// Envelope is one outbound message: an update tagged with the id of the
// query that produced it, so a client multiplexing several watches and
// observers over one connection can route each update back to its request.
type Envelope struct {
	QueryID uint64
	Update  dispatch.Update
}

// Client is one connected client's outbound queue and subscription
// bookkeeping.
type Client struct {
	id       ClientID
	out      chan Envelope
	timeout  time.Duration
	degraded bool

	// subs tracks every subscription id registered on behalf of this
	// client, so Manager.Disconnect can unregister them all.
	subs map[subindex.SubID]struct{}

	log *zap.SugaredLogger
	m   *Manager
}

// ID returns the client's session id.
func (c *Client) ID() ClientID { return c.id }

// Outbound is the channel a transport-layer goroutine drains to deliver
// updates to the client.
func (c *Client) Outbound() <-chan Envelope { return c.out }

// Degraded reports whether a steady-state send has ever timed out for this
// client since it connected.
func (c *Client) Degraded() bool { return c.degraded }

// Sender returns a dispatch.Sender that tags every Update it receives with
// queryID and enqueues it on this client's outbound queue using the
// steady-state send discipline (spec §4.9: mark degraded, don't just log,
// on timeout).
func (c *Client) Sender(queryID uint64) dispatch.Sender {
	return &sender{c: c, queryID: queryID}
}

// TrackSubscription records that subID was registered on this client's
// behalf, for Manager.Disconnect to clean up.
func (c *Client) TrackSubscription(subID subindex.SubID) {
	c.subs[subID] = struct{}{}
}

// UntrackSubscription forgets a subscription the client explicitly
// cancelled without disconnecting.
func (c *Client) UntrackSubscription(subID subindex.SubID) {
	delete(c.subs, subID)
}

// send implements the steady-state discipline: block up to timeout, and on
// expiry mark the client degraded and drop the update rather than block the
// engine task (spec §5: "sending an update to a client queue may suspend
// with a timeout; on timeout the update is dropped and logged ... or the
// client is marked degraded (steady state)").
func (c *Client) send(queryID uint64, u dispatch.Update) {
	env := Envelope{QueryID: queryID, Update: u}
	select {
	case c.out <- env:
	case <-time.After(c.timeout):
		c.degraded = true
		droppedUpdates.Inc()
		c.log.Warnw("client queue send timed out, marking degraded",
			"client", c.id, "query", queryID)
	}
}

// SendSnapshot delivers one entry of an initial snapshot using a short,
// fixed timeout, dropping and logging on overflow rather than marking the
// client degraded (spec §4.9: "initial snapshots use a short, fixed
// timeout, e.g. 10 ms, and log on overflow").
func (c *Client) SendSnapshot(queryID uint64, u dispatch.Update) {
	env := Envelope{QueryID: queryID, Update: u}
	select {
	case c.out <- env:
	case <-time.After(snapshotTimeout):
		droppedSnapshotEntries.Inc()
		c.log.Warnw("snapshot entry dropped, client queue full",
			"client", c.id, "query", queryID)
	}
}

type sender struct {
	c       *Client
	queryID uint64
}

func (s *sender) Send(u dispatch.Update) { s.c.send(s.queryID, u) }

// snapshotTimeout is the fixed, short timeout spec §4.9 calls out for
// initial-snapshot delivery, distinct from a client's configured
// steady-state timeout.
const snapshotTimeout = 10 * time.Millisecond

// Manager owns every connected client's queue. It is driven entirely by the
// engine task: Connect/Disconnect and every Sender send happen on that one
// goroutine.
type Manager struct {
	clients  map[ClientID]*Client
	nextID   ClientID
	capacity int
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// New constructs a Manager. capacity bounds each client's outbound queue;
// timeout is the steady-state send-timeout applied to every Sender produced
// for a connected client.
func New(capacity int, timeout time.Duration, log *zap.SugaredLogger) *Manager {
	connectedClients.Set(0)
	return &Manager{
		clients:  make(map[ClientID]*Client),
		capacity: capacity,
		timeout:  timeout,
		log:      log,
	}
}

// Connect registers a newly connected client and allocates its outbound
// queue.
func (m *Manager) Connect() *Client {
	m.nextID++
	c := &Client{
		id:      m.nextID,
		out:     make(chan Envelope, m.capacity),
		timeout: m.timeout,
		subs:    make(map[subindex.SubID]struct{}),
		log:     m.log,
		m:       m,
	}
	m.clients[c.id] = c
	connectedClients.Inc()
	return c
}

// Client looks up a connected client by id.
func (m *Manager) Client(id ClientID) (*Client, bool) {
	c, ok := m.clients[id]
	return c, ok
}

// Disconnect unregisters every subscription the client owned and discards
// its queue (spec §4.9: "On client disconnect, every subscription owned by
// that client is unregistered; the subscriber index and the matched sets of
// all affected subscriptions are cleaned in reverse of registration.").
// Unregistration order does not matter for correctness here — each
// subscription's cleanup is independent — but is driven off the same map
// Go already orders arbitrarily, matching dispatch.Unregister's own
// per-subscription independence.
func (m *Manager) Disconnect(d *dispatch.Dispatcher, id ClientID) {
	c, ok := m.clients[id]
	if !ok {
		return
	}
	for subID := range c.subs {
		d.Unregister(subID)
	}
	delete(m.clients, id)
	connectedClients.Dec()
}
