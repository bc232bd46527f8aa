// Package engineerr is the closed error taxonomy the sync engine returns.
//
// Every fallible operation in pkg/store, pkg/schema, and pkg/snapshot returns
// one of the sentinel kinds below. Callers classify an error with Classify
// to decide whether it is worth retrying.
package engineerr

import "fmt"

// Kind is the underlying reason for an engine error.
type Kind string

const (
	KindCollectionNotFound     Kind = "collection_not_found"
	KindRecordNotFound         Kind = "record_not_found"
	KindRecordAlreadyExists    Kind = "record_already_exists"
	KindOperationOnDeleted     Kind = "operation_on_deleted"
	KindVersionMismatch        Kind = "version_mismatch"
	KindInvalidPayload         Kind = "invalid_payload"
	KindMissingRequiredField   Kind = "missing_required_field"
	KindTypeMismatch           Kind = "type_mismatch"
	KindInvalidSnapshot        Kind = "invalid_snapshot"
	KindSchemaVersionMismatch  Kind = "schema_version_mismatch"
	KindClockOverflow          Kind = "clock_overflow"
)

// Class groups Kinds by how a caller should react to them.
type Class string

const (
	// ClassValidation errors mean the caller sent malformed input; never retried.
	ClassValidation Class = "validation"
	// ClassConcurrency errors mean the caller's view of state is stale; retry
	// after reconciling.
	ClassConcurrency Class = "concurrency"
	// ClassFormat errors mean a persistence/transport mismatch; the caller
	// must upgrade or discard.
	ClassFormat Class = "format"
)

// Error is the concrete type returned by the engine. It carries a Kind plus
// whatever fields are relevant to that kind.
type Error struct {
	Kind     Kind
	Field    string
	Expected string
	Actual   string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCollectionNotFound:
		return fmt.Sprintf("collection not found: %s", e.Field)
	case KindRecordNotFound:
		return fmt.Sprintf("record not found: %s", e.Field)
	case KindRecordAlreadyExists:
		return fmt.Sprintf("record already exists: %s", e.Field)
	case KindOperationOnDeleted:
		return fmt.Sprintf("operation on deleted record: %s", e.Field)
	case KindVersionMismatch:
		return fmt.Sprintf("version mismatch: expected %s, got %s", e.Expected, e.Actual)
	case KindInvalidPayload:
		return fmt.Sprintf("invalid payload: %s", e.Field)
	case KindMissingRequiredField:
		return fmt.Sprintf("missing required field: %s", e.Field)
	case KindTypeMismatch:
		return fmt.Sprintf("type mismatch for field '%s': expected %s, got %s", e.Field, e.Expected, e.Actual)
	case KindInvalidSnapshot:
		return fmt.Sprintf("invalid snapshot: %s", e.Field)
	case KindSchemaVersionMismatch:
		return fmt.Sprintf("schema version mismatch: expected %s, got %s", e.Expected, e.Actual)
	case KindClockOverflow:
		return "logical clock counter overflowed u64::MAX"
	default:
		return fmt.Sprintf("engine error: %s", e.Kind)
	}
}

// Is lets errors.Is match on Kind alone, ignoring the payload fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func CollectionNotFound(name string) error { return &Error{Kind: KindCollectionNotFound, Field: name} }
func RecordNotFound(id string) error       { return &Error{Kind: KindRecordNotFound, Field: id} }
func RecordAlreadyExists(id string) error  { return &Error{Kind: KindRecordAlreadyExists, Field: id} }
func OperationOnDeleted(id string) error   { return &Error{Kind: KindOperationOnDeleted, Field: id} }

func VersionMismatch(expected, actual uint64) error {
	return &Error{Kind: KindVersionMismatch, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
}

func InvalidPayload(reason string) error { return &Error{Kind: KindInvalidPayload, Field: reason} }

func MissingRequiredField(field string) error {
	return &Error{Kind: KindMissingRequiredField, Field: field}
}

func TypeMismatch(field, expected, got string) error {
	return &Error{Kind: KindTypeMismatch, Field: field, Expected: expected, Actual: got}
}

func InvalidSnapshot(reason string) error { return &Error{Kind: KindInvalidSnapshot, Field: reason} }

func SchemaVersionMismatch(expected, actual uint32) error {
	return &Error{Kind: KindSchemaVersionMismatch, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
}

func ClockOverflow() error { return &Error{Kind: KindClockOverflow} }

// Classify returns the retry class for any error produced by this package.
// Errors from other packages classify as ClassValidation (surfaced, not
// retried) since the engine never originates anything else.
func Classify(err error) Class {
	e, ok := err.(*Error)
	if !ok {
		return ClassValidation
	}
	switch e.Kind {
	case KindVersionMismatch, KindRecordAlreadyExists, KindRecordNotFound, KindOperationOnDeleted:
		return ClassConcurrency
	case KindInvalidSnapshot, KindSchemaVersionMismatch, KindClockOverflow:
		return ClassFormat
	default:
		return ClassValidation
	}
}

// KindOf extracts the Kind from an engine error, returning "" for anything
// else.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
