package tree

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
)

// MaxEntityIDBytes caps EntityID length (spec §3: "capped at 100 bytes").
const MaxEntityIDBytes = 100

// Entity is a named slot inside a device holding an insertion-ordered map
// ComponentType -> Component (spec §3). Membership is O(1) via the map;
// Order preserves insertion order for deterministic iteration/snapshotting.
type Entity struct {
	id         string
	components map[component.ComponentType]component.Component
	order      []component.ComponentType
	lastUpdate time.Time
}

func newEntity(id string, now time.Time) *Entity {
	return &Entity{
		id:         id,
		components: make(map[component.ComponentType]component.Component),
		lastUpdate: now,
	}
}

// ID returns the entity's human-readable id, unique within its device.
func (e *Entity) ID() string { return e.id }

// LastUpdate returns the last time any component on this entity changed.
func (e *Entity) LastUpdate() time.Time { return e.lastUpdate }

// ComponentCount returns the number of distinct component types present.
func (e *Entity) ComponentCount() int { return len(e.components) }

// Has reports whether the entity currently carries a component of type t.
func (e *Entity) Has(t component.ComponentType) bool {
	_, ok := e.components[t]
	return ok
}

// Get returns the current value of component type t, if present.
func (e *Entity) Get(t component.ComponentType) (component.Component, bool) {
	c, ok := e.components[t]
	return c, ok
}

// Types iterates registered component types in insertion order.
func (e *Entity) Types() []component.ComponentType {
	return e.order
}

// put introduces or replaces a component, returning true if this is a new
// type for the entity (the caller uses that to decide whether the device
// presence bit needs setting and whether a component_put vs
// ComponentNoValue situation applies).
func (e *Entity) put(c component.Component, now time.Time) bool {
	t := c.Type()
	_, existed := e.components[t]
	if !existed {
		e.order = append(e.order, t)
	}
	e.components[t] = c
	e.lastUpdate = now
	return !existed
}

// set updates an existing component of the same type. Returns false if the
// type was not already present (spec §4.2: "Fails if type absent").
func (e *Entity) set(c component.Component, now time.Time) bool {
	t := c.Type()
	if _, ok := e.components[t]; !ok {
		return false
	}
	e.components[t] = c
	e.lastUpdate = now
	return true
}

// remove deletes a component type from the entity (SPEC_FULL supplement 6).
// Returns false if the type was not present.
func (e *Entity) remove(t component.ComponentType, now time.Time) bool {
	if _, ok := e.components[t]; !ok {
		return false
	}
	delete(e.components, t)
	for i, ot := range e.order {
		if ot == t {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.lastUpdate = now
	return true
}
