// Package corerr defines the core's stable, machine-readable error taxonomy
// (spec §7). Every error the engine surfaces to an extension or a client is
// one of these. The tree and the other packages return them unwrapped;
// internal/qexec wraps a failing sink call with github.com/pkg/errors and
// keeps the wrapped text as a Transport error's message.
package corerr

import (
	"fmt"

	"github.com/brightgate-labs/reactor/internal/zaperr"
)

// Code is a stable, machine-readable error code name.
type Code string

// The closed set of stable error codes the core surfaces.
const (
	CodeStaleReference    Code = "StaleReference"
	CodeNotFound          Code = "NotFound"
	CodeDuplicateEntityID Code = "DuplicateEntityID"
	CodeDuplicateZoneID   Code = "DuplicateZoneID"
	CodeAlreadyAttached   Code = "AlreadyAttached"
	CodeProtocolViolation Code = "ProtocolViolation"
	CodeQueryValidation   Code = "QueryValidation"
	CodeTransport         Code = "Transport"
)

// Reason is a QueryValidation sub-code (spec §7).
type Reason string

const (
	ReasonLimitOnObserver  Reason = "LimitOnObserver"
	ReasonLimitOnWatcher   Reason = "LimitOnWatcher"
	ReasonInvalidAggregate Reason = "InvalidAggregation"
	ReasonComponentNoValue Reason = "ComponentNoValue"
	ReasonEntityIDLength   Reason = "EntityIDLength"
)

// Error is the typed error every public core API returns on failure. It
// carries a stable Code plus a short human Message, and implements
// zapcore.ObjectMarshaler via the embedded zaperr.ZapError so it logs
// structured fields instead of a flat string.
type Error struct {
	Code    Code
	Message string
	Reason  Reason // only meaningful when Code == CodeQueryValidation
	zaperr.ZapError
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newErr(code Code, msg string, kv ...interface{}) *Error {
	return &Error{
		Code:     code,
		Message:  msg,
		ZapError: zaperr.Errorw(msg, append([]interface{}{"code", string(code)}, kv...)...),
	}
}

// StaleReference reports an id whose generation no longer matches the slot.
func StaleReference(kind string, id fmt.Stringer) *Error {
	return newErr(CodeStaleReference, fmt.Sprintf("%s id %s is stale", kind, id), "kind", kind, "id", id.String())
}

// NotFound reports an unknown device/group/zone/entity/extension.
func NotFound(kind string, key interface{}) *Error {
	return newErr(CodeNotFound, fmt.Sprintf("%s %v not found", kind, key), "kind", kind, "key", key)
}

// DuplicateEntityID reports a RegisterEntity call reusing an id on a device.
func DuplicateEntityID(entityID string) *Error {
	return newErr(CodeDuplicateEntityID, fmt.Sprintf("entity id %q already registered", entityID), "entityID", entityID)
}

// DuplicateZoneID reports a persisted zones file naming the same zone twice.
func DuplicateZoneID(zoneID string) *Error {
	return newErr(CodeDuplicateZoneID, fmt.Sprintf("zone id %q duplicated", zoneID), "zoneID", zoneID)
}

// AlreadyAttached reports attach_extension for an id that is already live.
func AlreadyAttached(extID string) *Error {
	return newErr(CodeAlreadyAttached, fmt.Sprintf("extension %q already attached", extID), "extensionID", extID)
}

// ProtocolViolation reports an extension message inconsistent with its
// transaction state. Always fatal for that extension.
func ProtocolViolation(extID, detail string) *Error {
	return newErr(CodeProtocolViolation, fmt.Sprintf("extension %q protocol violation: %s", extID, detail), "extensionID", extID, "detail", detail)
}

// QueryValidation reports a rejected subscription or query.
func QueryValidation(reason Reason, detail string) *Error {
	e := newErr(CodeQueryValidation, detail, "reason", string(reason))
	e.Reason = reason
	return e
}

// InvalidEntityID reports an entity id outside the length bounds §4.2
// requires (non-empty, capped at MaxEntityIDBytes). Distinct from
// ComponentNoValue, which is reserved for a watched type with no
// igloo_type.
func InvalidEntityID(entityID string) *Error {
	return QueryValidation(ReasonEntityIDLength, fmt.Sprintf("entity id %q out of bounds", entityID))
}

// Transport reports a sink write failure, a closed client queue, or a
// client queue overflow.
func Transport(detail string) *Error {
	return newErr(CodeTransport, detail)
}
