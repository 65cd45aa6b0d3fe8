package oplog

import (
	"errors"
	"fmt"
)

// Field keys as they appear on the wire in the oplog collection.
const (
	fieldOp         = "op"
	fieldTimestamp  = "ts"
	fieldNamespace  = "ns"
	fieldObject     = "o"
	fieldObject2    = "o2"
	fieldSession    = "lsid"
	fieldSessionUID = "uid"
	fieldApplyOps   = "applyOps"
	fieldMessage    = "msg"
)

// Roles identify what a required field was expected to hold when a
// decode fails, so that "o" as an update payload and "o" as a delete
// query produce distinguishable diagnostics.
const (
	RoleTag       = "tag"
	RolePosition  = "log position"
	RoleNamespace = "namespace"
	RolePayload   = "payload"
	RoleQuery     = "query"
	RoleUpdate    = "update"
	RoleCommand   = "command"
	RoleSession   = "session"
)

// ErrInvalidOperation is returned when a batch element that must be a
// nested record is not a document at all.
var ErrInvalidOperation = errors.New("oplog: operation is not a document")

// UnknownOperationError is returned when the "op" tag holds a value
// outside the recognized set. It carries the raw tag for diagnostics.
type UnknownOperationError struct {
	Tag string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("oplog: unknown operation %q", e.Tag)
}

// MissingFieldError is returned when a required field is absent or has
// the wrong shape for its role. Field is the wire key, Role the
// expectation it failed.
type MissingFieldError struct {
	Field string
	Role  string
}

func (e *MissingFieldError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("oplog: missing field %q", e.Field)
	}
	return fmt.Sprintf("oplog: missing field %q (%s)", e.Field, e.Role)
}
