package oplog

import (
	"encoding/base64"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Decode converts one raw oplog document into an Operation.
//
// Decoding is all-or-nothing: the first missing or mistyped required
// field aborts the whole decode with a typed error, and no partial
// operation is ever returned. The input is only read; any sub-document
// retained by the returned Operation is a deep copy, so the caller may
// reuse or mutate the source document afterwards.
//
// Decode is pure and safe for concurrent use on independent documents.
func Decode(doc bson.D) (Operation, error) {
	tag, err := lookupString(doc, fieldOp, RoleTag)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "n":
		return decodeNoop(doc)
	case "i":
		return decodeInsert(doc)
	case "u":
		return decodeUpdate(doc)
	case "d":
		return decodeDelete(doc)
	case "c":
		return decodeCommand(doc)
	}
	return nil, &UnknownOperationError{Tag: tag}
}

// DecodeAll decodes documents in order, failing fast on the first
// error. Callers with a skip-and-continue policy should call Decode per
// document instead.
func DecodeAll(docs []bson.D) ([]Operation, error) {
	ops := make([]Operation, 0, len(docs))
	for _, doc := range docs {
		op, err := Decode(doc)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// decodeElement decodes one applyOps batch element, which must itself
// be a full oplog document.
func decodeElement(v any) (Operation, error) {
	sub, ok := v.(bson.D)
	if !ok {
		return nil, ErrInvalidOperation
	}
	return Decode(sub)
}

func decodeNoop(doc bson.D) (Operation, error) {
	pos, err := lookupPosition(doc)
	if err != nil {
		return nil, err
	}

	// Not every no-op carries a payload document, and "msg" inside it
	// is optional too.
	var message string
	if payload, ok := lookup(doc, fieldObject); ok {
		if payloadDoc, ok := payload.(bson.D); ok {
			if msg, ok := lookup(payloadDoc, fieldMessage); ok {
				message, _ = msg.(string)
			}
		}
	}

	hdr := Header{Timestamp: pos.Time(), Pos: pos}
	// No-op entries predate logical sessions and routinely carry no
	// lsid; when one is present the uid is derived exactly as for data
	// operations, otherwise it stays empty.
	if uid, err := sessionUID(doc); err == nil {
		hdr.UID = uid
	}

	return Noop{Header: hdr, Message: message}, nil
}

func decodeInsert(doc bson.D) (Operation, error) {
	pos, err := lookupPosition(doc)
	if err != nil {
		return nil, err
	}
	ns, err := lookupString(doc, fieldNamespace, RoleNamespace)
	if err != nil {
		return nil, err
	}
	payload, err := lookupDocument(doc, fieldObject, RolePayload)
	if err != nil {
		return nil, err
	}
	uid, err := sessionUID(doc)
	if err != nil {
		return nil, err
	}

	return Insert{
		Header:    Header{UID: uid, Timestamp: pos.Time(), Pos: pos},
		Namespace: ns,
		Document:  cloneDocument(payload),
	}, nil
}

func decodeUpdate(doc bson.D) (Operation, error) {
	pos, err := lookupPosition(doc)
	if err != nil {
		return nil, err
	}
	ns, err := lookupString(doc, fieldNamespace, RoleNamespace)
	if err != nil {
		return nil, err
	}
	update, err := lookupDocument(doc, fieldObject, RoleUpdate)
	if err != nil {
		return nil, err
	}
	query, err := lookupDocument(doc, fieldObject2, RoleQuery)
	if err != nil {
		return nil, err
	}
	uid, err := sessionUID(doc)
	if err != nil {
		return nil, err
	}

	return Update{
		Header:    Header{UID: uid, Timestamp: pos.Time(), Pos: pos},
		Namespace: ns,
		Query:     cloneDocument(query),
		Update:    cloneDocument(update),
	}, nil
}

func decodeDelete(doc bson.D) (Operation, error) {
	pos, err := lookupPosition(doc)
	if err != nil {
		return nil, err
	}
	ns, err := lookupString(doc, fieldNamespace, RoleNamespace)
	if err != nil {
		return nil, err
	}
	query, err := lookupDocument(doc, fieldObject, RoleQuery)
	if err != nil {
		return nil, err
	}
	uid, err := sessionUID(doc)
	if err != nil {
		return nil, err
	}

	return Delete{
		Header:    Header{UID: uid, Timestamp: pos.Time(), Pos: pos},
		Namespace: ns,
		Query:     cloneDocument(query),
	}, nil
}

// decodeCommand produces either a Command or, when the payload carries
// a non-empty applyOps batch, an ApplyOps with every element decoded
// through Decode itself. A malformed batch field (not an array, or
// empty) falls back to a plain Command; a malformed batch element is an
// error for the whole decode.
func decodeCommand(doc bson.D) (Operation, error) {
	pos, err := lookupPosition(doc)
	if err != nil {
		return nil, err
	}
	ns, err := lookupString(doc, fieldNamespace, RoleNamespace)
	if err != nil {
		return nil, err
	}
	payload, err := lookupDocument(doc, fieldObject, RoleCommand)
	if err != nil {
		return nil, err
	}
	uid, err := sessionUID(doc)
	if err != nil {
		return nil, err
	}

	hdr := Header{UID: uid, Timestamp: pos.Time(), Pos: pos}

	if raw, ok := lookup(payload, fieldApplyOps); ok {
		if batch, ok := raw.(bson.A); ok && len(batch) > 0 {
			ops := make([]Operation, 0, len(batch))
			for _, element := range batch {
				op, err := decodeElement(element)
				if err != nil {
					return nil, err
				}
				ops = append(ops, op)
			}
			return ApplyOps{Header: hdr, Namespace: ns, Operations: ops}, nil
		}
	}

	return Command{Header: hdr, Namespace: ns, Command: cloneDocument(payload)}, nil
}

// sessionUID derives the stable operation identifier from the binary
// uid inside the lsid session document, rendered as standard base64
// with padding. The encoding is fixed: systems compare uids as strings.
func sessionUID(doc bson.D) (string, error) {
	lsid, err := lookupDocument(doc, fieldSession, RoleSession)
	if err != nil {
		return "", err
	}
	raw, ok := lookup(lsid, fieldSessionUID)
	if !ok {
		return "", &MissingFieldError{Field: fieldSession + "." + fieldSessionUID, Role: RoleSession}
	}
	bin, ok := raw.(primitive.Binary)
	if !ok {
		return "", &MissingFieldError{Field: fieldSession + "." + fieldSessionUID, Role: RoleSession}
	}
	return base64.StdEncoding.EncodeToString(bin.Data), nil
}

func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func lookupString(doc bson.D, key, role string) (string, error) {
	v, ok := lookup(doc, key)
	if !ok {
		return "", &MissingFieldError{Field: key, Role: role}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MissingFieldError{Field: key, Role: role}
	}
	return s, nil
}

func lookupDocument(doc bson.D, key, role string) (bson.D, error) {
	v, ok := lookup(doc, key)
	if !ok {
		return nil, &MissingFieldError{Field: key, Role: role}
	}
	sub, ok := v.(bson.D)
	if !ok {
		return nil, &MissingFieldError{Field: key, Role: role}
	}
	return sub, nil
}

func lookupPosition(doc bson.D) (LogPosition, error) {
	v, ok := lookup(doc, fieldTimestamp)
	if !ok {
		return LogPosition{}, &MissingFieldError{Field: fieldTimestamp, Role: RolePosition}
	}
	ts, ok := v.(primitive.Timestamp)
	if !ok {
		return LogPosition{}, &MissingFieldError{Field: fieldTimestamp, Role: RolePosition}
	}
	return LogPosition{Seconds: ts.T, Ordinal: ts.I}, nil
}

func cloneDocument(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case bson.D:
		return cloneDocument(v)
	case bson.A:
		out := make(bson.A, len(v))
		for i, element := range v {
			out[i] = cloneValue(element)
		}
		return out
	case primitive.Binary:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return primitive.Binary{Subtype: v.Subtype, Data: data}
	default:
		return v
	}
}
