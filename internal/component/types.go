// Package component implements the closed component registry (spec §4.1).
// It is modeled as a code-generated artifact would be: a fixed set of
// variant types, a stable numeric tag per variant, and a metadata table the
// rest of the engine treats components through opaquely.
package component

import "fmt"

// ComponentType is the stable per-variant tag (spec §4.1: "stable u16 tag
// per variant").
type ComponentType uint16

// Component is the opaque, cheap-to-clone value every entity slot holds.
// Components never own resources (spec §1 Non-goals).
type Component interface {
	Type() ComponentType
}

// The closed set of component variants. A real deployment's registry is
// generated from a declaration file (spec §4.1); this table stands in for
// that generator's output.
const (
	TypeSwitch ComponentType = iota + 1
	TypeDimmer
	TypeColor
	TypeText
	TypeInteger
	TypeReal
	TypeBoolean
	TypeDate
	TypeTime
	TypeClimateMode
	TypeSupportedClimateModes
	TypeOnline // marker: no payload
)

// MaxComponentTag bounds the presence bitmap's word count
// (ceil(MaxComponentTag/32), spec §3 Device fields).
const MaxComponentTag = uint16(TypeOnline)

// --- single-value variants ---

// Switch is a binary on/off component.
type Switch bool

// Type implements Component.
func (Switch) Type() ComponentType { return TypeSwitch }

// Dimmer is a fractional brightness/level component, 0.0-1.0.
type Dimmer float32

// Type implements Component.
func (Dimmer) Type() ComponentType { return TypeDimmer }

// Text is a free-form string component.
type Text string

// Type implements Component.
func (Text) Type() ComponentType { return TypeText }

// Integer is a whole-number component.
type Integer int64

// Type implements Component.
func (Integer) Type() ComponentType { return TypeInteger }

// Real is a floating-point component.
type Real float64

// Type implements Component.
func (Real) Type() ComponentType { return TypeReal }

// Boolean is a generic boolean component, distinct from Switch so the
// registry can carry two differently-named binary variants the way a real
// declaration file would (a light switch is not the same concept as a door
// open/closed sensor, even though both are bools).
type Boolean bool

// Type implements Component.
func (Boolean) Type() ComponentType { return TypeBoolean }

// Date is days-since-epoch (spec §4.1: "Date by days-since-epoch").
type Date int32

// Type implements Component.
func (Date) Type() ComponentType { return TypeDate }

// Time is seconds-since-midnight (spec §4.1).
type Time int32

// Type implements Component.
func (Time) Type() ComponentType { return TypeTime }

// ClimateMode is a closed-vocabulary enum-shaped single-value component
// (e.g. "heat", "cool", "auto", "off").
type ClimateMode string

// Type implements Component.
func (ClimateMode) Type() ComponentType { return TypeClimateMode }

// --- struct variant ---

// Color is an RGB triple, ordered lexicographically over (r, g, b) per
// spec §4.1.
type Color struct {
	R, G, B uint8
}

// Type implements Component.
func (Color) Type() ComponentType { return TypeColor }

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// --- list variant ---

// SupportedClimateModes is a list-shaped component advertising a device's
// supported ClimateMode values. Lists are not individually aggregable.
type SupportedClimateModes []string

// Type implements Component.
func (SupportedClimateModes) Type() ComponentType { return TypeSupportedClimateModes }

// --- marker variant ---

// Online is a marker component: presence alone is the signal, no payload.
type Online struct{}

// Type implements Component.
func (Online) Type() ComponentType { return TypeOnline }
