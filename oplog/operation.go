// Package oplog converts raw MongoDB oplog documents into a closed set
// of strongly typed operations that replication and CDC consumers can
// switch on safely. Any document may be handed to Decode; documents
// that do not form a valid operation yield a typed error rather than a
// partial result.
package oplog

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Kind discriminates the operation variants.
type Kind uint8

const (
	KindNoop Kind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindCommand
	KindApplyOps
)

func (k Kind) String() string {
	switch k {
	case KindNoop:
		return "noop"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindCommand:
		return "command"
	case KindApplyOps:
		return "applyops"
	}
	return "unknown"
}

// LogPosition is the (seconds, ordinal) pair locating an entry in the
// oplog. Ordinal disambiguates entries recorded within the same second.
type LogPosition struct {
	Seconds uint32
	Ordinal uint32
}

// Time reconstructs a UTC timestamp from the position. The ordinal is
// folded into the nanosecond component: it is an entry counter, not a
// true sub-second offset, but the fold keeps entries within one second
// ordered. Consumers needing the real counter should read the raw
// position carried on every operation.
func (p LogPosition) Time() time.Time {
	return time.Unix(int64(p.Seconds), int64(p.Ordinal)).UTC()
}

// Header carries the fields common to every operation variant.
type Header struct {
	// UID is the stable identifier derived from the session metadata
	// of the source record. Empty only for no-op entries that carry no
	// session document.
	UID string
	// Timestamp is Pos.Time(), precomputed at decode.
	Timestamp time.Time
	// Pos is the raw log position the timestamp was derived from.
	Pos LogPosition
}

// Meta returns the common header. It exists so every variant satisfies
// Operation through embedding.
func (h Header) Meta() Header { return h }

// Operation is the closed union of oplog operation variants: Noop,
// Insert, Update, Delete, Command and ApplyOps. Consumers dispatch with
// a type switch; the unexported method keeps the set closed.
type Operation interface {
	Kind() Kind
	Meta() Header
	fmt.Stringer

	sealed()
}

// Noop is an informational entry, inserted periodically as a heartbeat
// or when initiating a replica set. It changes no data.
type Noop struct {
	Header
	// Message is the optional text under o.msg; empty when absent.
	Message string
}

// Insert is a document inserted into a namespace.
type Insert struct {
	Header
	Namespace string
	Document  bson.D
}

// Update modifies the documents matching Query in Namespace according
// to Update.
type Update struct {
	Header
	Namespace string
	Query     bson.D
	Update    bson.D
}

// Delete removes the documents matching Query in Namespace.
type Delete struct {
	Header
	Namespace string
	Query     bson.D
}

// Command is an administrative command, such as a collection create or
// drop. The command document is passed through untouched.
type Command struct {
	Header
	Namespace string
	Command   bson.D
}

// ApplyOps is a batch of operations applied as one atomic unit. Each
// element is a fully decoded Operation in source order.
type ApplyOps struct {
	Header
	Namespace  string
	Operations []Operation
}

func (Noop) Kind() Kind     { return KindNoop }
func (Insert) Kind() Kind   { return KindInsert }
func (Update) Kind() Kind   { return KindUpdate }
func (Delete) Kind() Kind   { return KindDelete }
func (Command) Kind() Kind  { return KindCommand }
func (ApplyOps) Kind() Kind { return KindApplyOps }

// sealed lives on every variant, not on Header, so embedding Header in
// an outside type does not admit it into the union.
func (Noop) sealed()     {}
func (Insert) sealed()   {}
func (Update) sealed()   {}
func (Delete) sealed()   {}
func (Command) sealed()  {}
func (ApplyOps) sealed() {}

func (n Noop) String() string {
	if n.Message == "" {
		return fmt.Sprintf("No-op #%s at %s", n.UID, renderTime(n.Timestamp))
	}
	return fmt.Sprintf("No-op #%s at %s: %s", n.UID, renderTime(n.Timestamp), n.Message)
}

func (i Insert) String() string {
	return fmt.Sprintf("Insert #%s into %s at %s: %s",
		i.UID, i.Namespace, renderTime(i.Timestamp), renderDocument(i.Document))
}

func (u Update) String() string {
	return fmt.Sprintf("Update #%s %s with %s at %s: %s",
		u.UID, u.Namespace, renderDocument(u.Query), renderTime(u.Timestamp), renderDocument(u.Update))
}

func (d Delete) String() string {
	return fmt.Sprintf("Delete #%s from %s at %s: %s",
		d.UID, d.Namespace, renderTime(d.Timestamp), renderDocument(d.Query))
}

func (c Command) String() string {
	return fmt.Sprintf("Command #%s %s at %s: %s",
		c.UID, c.Namespace, renderTime(c.Timestamp), renderDocument(c.Command))
}

func (a ApplyOps) String() string {
	return fmt.Sprintf("ApplyOps #%s %s at %s: %d operations",
		a.UID, a.Namespace, renderTime(a.Timestamp), len(a.Operations))
}

func renderTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// renderDocument produces a deterministic one-line extended JSON form
// of a document for diagnostics. It never panics; documents that cannot
// be marshaled render as a placeholder.
func renderDocument(doc bson.D) string {
	if doc == nil {
		return "{}"
	}
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprintf("<unrenderable document: %v>", err)
	}
	return string(out)
}
