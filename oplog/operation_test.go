package oplog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ankur-anand/mongoplog/oplog"
)

func testHeader(seconds uint32) oplog.Header {
	pos := oplog.LogPosition{Seconds: seconds, Ordinal: 0}
	return oplog.Header{UID: "dGVzdA==", Timestamp: pos.Time(), Pos: pos}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "noop", oplog.KindNoop.String())
	assert.Equal(t, "insert", oplog.KindInsert.String())
	assert.Equal(t, "update", oplog.KindUpdate.String())
	assert.Equal(t, "delete", oplog.KindDelete.String())
	assert.Equal(t, "command", oplog.KindCommand.String())
	assert.Equal(t, "applyops", oplog.KindApplyOps.String())
	assert.Equal(t, "unknown", oplog.Kind(42).String())
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   oplog.Operation
		want string
	}{
		{
			name: "noop with message",
			op:   oplog.Noop{Header: testHeader(1479419535), Message: "initiating set"},
			want: "No-op #dGVzdA== at 2016-11-17T21:52:15Z: initiating set",
		},
		{
			name: "noop without message",
			op:   oplog.Noop{Header: testHeader(1479419535)},
			want: "No-op #dGVzdA== at 2016-11-17T21:52:15Z",
		},
		{
			name: "insert",
			op: oplog.Insert{
				Header:    testHeader(1479561394),
				Namespace: "foo.bar",
				Document:  bson.D{{Key: "foo", Value: "bar"}},
			},
			want: `Insert #dGVzdA== into foo.bar at 2016-11-19T13:16:34Z: {"foo":"bar"}`,
		},
		{
			name: "update",
			op: oplog.Update{
				Header:    testHeader(1479561394),
				Namespace: "foo.bar",
				Query:     bson.D{{Key: "_id", Value: int32(1)}},
				Update:    bson.D{{Key: "$set", Value: bson.D{{Key: "foo", Value: "baz"}}}},
			},
			want: `Update #dGVzdA== foo.bar with {"_id":1} at 2016-11-19T13:16:34Z: {"$set":{"foo":"baz"}}`,
		},
		{
			name: "delete",
			op: oplog.Delete{
				Header:    testHeader(1479561394),
				Namespace: "foo.bar",
				Query:     bson.D{{Key: "_id", Value: int32(1)}},
			},
			want: `Delete #dGVzdA== from foo.bar at 2016-11-19T13:16:34Z: {"_id":1}`,
		},
		{
			name: "command",
			op: oplog.Command{
				Header:    testHeader(1479561394),
				Namespace: "test.$cmd",
				Command:   bson.D{{Key: "create", Value: "foo"}},
			},
			want: `Command #dGVzdA== test.$cmd at 2016-11-19T13:16:34Z: {"create":"foo"}`,
		},
		{
			name: "applyops",
			op: oplog.ApplyOps{
				Header:    testHeader(1479561394),
				Namespace: "foo.$cmd",
				Operations: []oplog.Operation{
					oplog.Insert{Header: testHeader(1479561394), Namespace: "foo.bar"},
					oplog.Delete{Header: testHeader(1479561394), Namespace: "foo.bar"},
				},
			},
			want: "ApplyOps #dGVzdA== foo.$cmd at 2016-11-19T13:16:34Z: 2 operations",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.op.String())
			// Rendering is deterministic.
			assert.Equal(t, tc.op.String(), tc.op.String())
		})
	}
}

func TestOperation_StringNilDocuments(t *testing.T) {
	ops := []oplog.Operation{
		oplog.Insert{Header: testHeader(1479561394), Namespace: "foo.bar"},
		oplog.Update{Header: testHeader(1479561394), Namespace: "foo.bar"},
		oplog.Delete{Header: testHeader(1479561394), Namespace: "foo.bar"},
		oplog.Command{Header: testHeader(1479561394), Namespace: "foo.$cmd"},
		oplog.ApplyOps{Header: testHeader(1479561394), Namespace: "foo.$cmd"},
	}

	for _, op := range ops {
		assert.NotPanics(t, func() {
			assert.NotEmpty(t, op.String())
		})
	}
}

func TestOperation_KindMatchesVariant(t *testing.T) {
	tests := map[oplog.Kind]oplog.Operation{
		oplog.KindNoop:     oplog.Noop{},
		oplog.KindInsert:   oplog.Insert{},
		oplog.KindUpdate:   oplog.Update{},
		oplog.KindDelete:   oplog.Delete{},
		oplog.KindCommand:  oplog.Command{},
		oplog.KindApplyOps: oplog.ApplyOps{},
	}
	for kind, op := range tests {
		assert.Equal(t, kind, op.Kind())
	}
}

func TestLogPosition_Time(t *testing.T) {
	pos := oplog.LogPosition{Seconds: 1479419535, Ordinal: 0}
	want := time.Date(2016, time.November, 17, 21, 52, 15, 0, time.UTC)
	require.Equal(t, want, pos.Time())
	assert.Equal(t, time.UTC, pos.Time().Location())

	// The ordinal lands in the sub-second component.
	assert.Equal(t, 7, oplog.LogPosition{Seconds: 1479419535, Ordinal: 7}.Time().Nanosecond())
}

func TestHeader_Meta(t *testing.T) {
	hdr := testHeader(1479561394)
	op := oplog.Insert{Header: hdr, Namespace: "foo.bar", Document: bson.D{}}
	assert.Equal(t, hdr, op.Meta())
	assert.Equal(t, primitive.Timestamp{T: 1479561394, I: 0},
		primitive.Timestamp{T: op.Meta().Pos.Seconds, I: op.Meta().Pos.Ordinal})
}
