// Package history implements the write side of the on-disk component
// history format spec §6 documents: the core itself does not read or
// query history, but every component_set/component_put the engine applies
// can be handed to an Appender, and FileAppender is the concrete one that
// actually produces files in that format.
package history

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// Version is the on-disk major version this package writes.
const Version uint16 = 0

// maxEntityIDLen caps the filename-safety-encoded entity id, matching the
// 100-byte cap the original documents for the same reason (long entity ids
// would otherwise produce unwieldy filenames).
const maxEntityIDLen = 100

// Metadata is the fixed-size header every history file opens with,
// following the original's HistoricalInstanceMetadata fields.
type Metadata struct {
	EntrySizeBytes uint16
	StartTimestamp uint64 // unix milliseconds of the first appended entry
	MaxAgeHours    *uint32
	MinIntervalMs  uint32
}

func (m Metadata) encode() []byte {
	buf := make([]byte, 2+8+1+4+4)
	binary.BigEndian.PutUint16(buf[0:2], m.EntrySizeBytes)
	binary.BigEndian.PutUint64(buf[2:10], m.StartTimestamp)
	if m.MaxAgeHours != nil {
		buf[10] = 1
		binary.BigEndian.PutUint32(buf[11:15], *m.MaxAgeHours)
	}
	binary.BigEndian.PutUint32(buf[15:19], m.MinIntervalMs)
	return buf
}

// Appender is the sink the engine feeds every applied component value to.
// A no-op Appender lets the core run with history disabled without any
// special-casing at call sites.
type Appender interface {
	Append(did tree.DeviceID, entityID string, c component.Component, at time.Time) error
	Close() error
}

// Noop discards everything appended to it.
type Noop struct{}

func (Noop) Append(tree.DeviceID, string, component.Component, time.Time) error { return nil }
func (Noop) Close() error                                                       { return nil }

// FilenameFor builds the `{device_id}_{entity_id_hex}_{component_tag}.bin`
// path under root (spec §6). Hex, not the original's base58, encodes the
// entity id: both exist solely to keep arbitrary entity id bytes out of a
// filename, and hex needs no new dependency.
func FilenameFor(root string, did tree.DeviceID, entityID string, t component.ComponentType) string {
	if len(entityID) > maxEntityIDLen {
		entityID = entityID[:maxEntityIDLen]
	}
	enc := hex.EncodeToString([]byte(entityID))
	name := fmt.Sprintf("%d_%s_%s.bin", uint64(did), enc, component.Name(t))
	return filepath.Join(root, name)
}

type fileKey struct {
	did    tree.DeviceID
	entity string
	typ    component.ComponentType
}

type openFile struct {
	f              *os.File
	startTimestamp uint64
}

// FileAppender writes one growing file per (device, entity, component
// type), lazily opened on first append. MinIntervalMs is recorded in each
// new file's metadata but is advisory only: FileAppender itself never
// drops or coalesces entries, leaving rate limiting to whatever calls
// Append.
type FileAppender struct {
	root          string
	minIntervalMs uint32
	maxAgeHours   *uint32

	mu    sync.Mutex
	files map[fileKey]*openFile
}

// NewFileAppender roots history files under root, creating it if absent.
func NewFileAppender(root string, minIntervalMs uint32, maxAgeHours *uint32) (*FileAppender, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("history: creating root %s: %w", root, err)
	}
	return &FileAppender{
		root:          root,
		minIntervalMs: minIntervalMs,
		maxAgeHours:   maxAgeHours,
		files:         make(map[fileKey]*openFile),
	}, nil
}

// Append encodes c's value and appends one entry to the file for
// (did, entityID, c.Type()), opening and writing the header first if this
// is the first append for that key.
func (a *FileAppender) Append(did tree.DeviceID, entityID string, c component.Component, at time.Time) error {
	payload, err := encodeValue(c)
	if err != nil {
		return err
	}

	key := fileKey{did: did, entity: entityID, typ: c.Type()}

	a.mu.Lock()
	defer a.mu.Unlock()

	of, ok := a.files[key]
	if !ok {
		path := FilenameFor(a.root, did, entityID, c.Type())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("history: opening %s: %w", path, err)
		}
		startTS := uint64(at.UnixMilli())
		meta := Metadata{
			EntrySizeBytes: uint16(len(payload)),
			StartTimestamp: startTS,
			MaxAgeHours:    a.maxAgeHours,
			MinIntervalMs:  a.minIntervalMs,
		}
		if err := writeHeader(f, meta); err != nil {
			f.Close()
			return err
		}
		of = &openFile{f: f, startTimestamp: startTS}
		a.files[key] = of
	}

	offsetMs := uint64(at.UnixMilli()) - of.startTimestamp
	if offsetMs > math.MaxUint32 {
		// wraps past what a u32 millisecond offset can hold; in practice this
		// is ~49 days after the file's first entry
		offsetMs %= 1 << 32
	}
	entry := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(entry[0:4], uint32(offsetMs))
	copy(entry[4:], payload)
	_, err = of.f.Write(entry)
	return err
}

// Close flushes and closes every file this appender has opened.
func (a *FileAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, of := range a.files {
		if err := of.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.files = make(map[fileKey]*openFile)
	return firstErr
}

func writeHeader(f *os.File, meta Metadata) error {
	encoded := meta.encode()
	hdr := make([]byte, 2+4)
	binary.BigEndian.PutUint16(hdr[0:2], Version)
	binary.BigEndian.PutUint32(hdr[2:6], uint32(len(encoded)))
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	_, err := f.Write(encoded)
	return err
}

// encodeValue produces the fixed-width payload history stores for c.
// Variable-length variants (Text, ClimateMode, SupportedClimateModes) are
// not history-eligible: they have no fixed entry_size_bytes to put in the
// header, matching the original's "entry_size_bytes: sanity check" comment
// that assumes one width per file.
func encodeValue(c component.Component) ([]byte, error) {
	switch v := c.(type) {
	case component.Switch:
		return boolByte(bool(v)), nil
	case component.Boolean:
		return boolByte(bool(v)), nil
	case component.Online:
		return nil, nil
	case component.Dimmer:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return buf, nil
	case component.Real:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(float64(v)))
		return buf, nil
	case component.Integer:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v))
		return buf, nil
	case component.Date:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(v))
		return buf, nil
	case component.Time:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(v))
		return buf, nil
	case component.Color:
		return []byte{v.R, v.G, v.B}, nil
	default:
		return nil, fmt.Errorf("history: %s has no fixed-width encoding", component.Name(c.Type()))
	}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
