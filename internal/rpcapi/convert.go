package rpcapi

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

// ── Documents ────────────────────────────────────────────────────────────────

func NewRecordToStruct(n store.NewRecord) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"expression": structpb.NewStringValue(n.Expression),
		"result":     structpb.NewStringValue(n.Result),
	}}
}

func NewRecordFromStruct(s *structpb.Struct) (store.NewRecord, error) {
	n := store.NewRecord{
		Expression: stringField(s, "expression"),
		Result:     stringField(s, "result"),
	}
	if err := n.Validate(); err != nil {
		return store.NewRecord{}, err
	}
	return n, nil
}

func RecordToStruct(r store.Record) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":            structpb.NewStringValue(r.ID),
		"expression":    structpb.NewStringValue(r.Expression),
		"result":        structpb.NewStringValue(r.Result),
		"created_at_ms": structpb.NewNumberValue(float64(r.CreatedAt.UnixMilli())),
		"seq":           structpb.NewNumberValue(float64(r.Seq)),
	}}
}

func RecordFromStruct(s *structpb.Struct) (store.Record, error) {
	id := stringField(s, "id")
	if strings.TrimSpace(id) == "" {
		return store.Record{}, fmt.Errorf("document without id")
	}
	return store.Record{
		ID:         id,
		Expression: stringField(s, "expression"),
		Result:     stringField(s, "result"),
		CreatedAt:  time.UnixMilli(int64(numberField(s, "created_at_ms"))).UTC(),
		Seq:        int64(numberField(s, "seq")),
	}, nil
}

// ── Snapshots ────────────────────────────────────────────────────────────────

func SnapshotToList(recs []store.Record) *structpb.ListValue {
	vals := make([]*structpb.Value, len(recs))
	for i, r := range recs {
		vals[i] = structpb.NewStructValue(RecordToStruct(r))
	}
	return &structpb.ListValue{Values: vals}
}

// SnapshotFromList decodes a full snapshot. The result is re-sorted so a
// misordered server cannot break the newest-first contract.
func SnapshotFromList(l *structpb.ListValue) ([]store.Record, error) {
	out := make([]store.Record, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("snapshot entry %d is not a document", i)
		}
		r, err := RecordFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("snapshot entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	store.SortNewestFirst(out)
	return out, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}
