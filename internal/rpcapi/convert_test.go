package rpcapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

func TestRecordStructKeepsOrderingKeys(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123).UTC()
	in := store.Record{ID: "42", Expression: "9 / 3", Result: "3", CreatedAt: at, Seq: 42}

	out, err := RecordFromStruct(RecordToStruct(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRecordFromStructRequiresID(t *testing.T) {
	_, err := RecordFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"expression": structpb.NewStringValue("1 + 1"),
	}})
	assert.Error(t, err)
}

func TestNewRecordFromStructValidates(t *testing.T) {
	_, err := NewRecordFromStruct(&structpb.Struct{})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	n, err := NewRecordFromStruct(NewRecordToStruct(store.NewRecord{Expression: "2 * 3", Result: "6"}))
	require.NoError(t, err)
	assert.Equal(t, "2 * 3", n.Expression)
}

func TestSnapshotFromListSortsNewestFirst(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000).UTC()
	list := SnapshotToList([]store.Record{
		{ID: "1", Expression: "a", Result: "1", CreatedAt: base, Seq: 1},
		{ID: "3", Expression: "c", Result: "3", CreatedAt: base.Add(time.Second), Seq: 3},
		{ID: "2", Expression: "b", Result: "2", CreatedAt: base, Seq: 2},
	})

	recs, err := SnapshotFromList(list)
	require.NoError(t, err)
	ids := []string{recs[0].ID, recs[1].ID, recs[2].ID}
	assert.Equal(t, []string{"3", "2", "1"}, ids)
}

func TestSnapshotFromListRejectsNonDocuments(t *testing.T) {
	_, err := SnapshotFromList(&structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("x")}})
	assert.Error(t, err)
}
