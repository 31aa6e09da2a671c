package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}

// ── History ──────────────────────────────────────────────────────────────────

func historyRecord(r store.Record) types.HistoryRecord {
	return types.HistoryRecord{
		ID:         r.ID,
		Expression: r.Expression,
		Result:     r.Result,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		Seq:        r.Seq,
	}
}

func historyResponse(recs []store.Record) types.HistoryResponse {
	out := types.HistoryResponse{Records: make([]types.HistoryRecord, len(recs))}
	for i, r := range recs {
		out.Records[i] = historyRecord(r)
	}
	return out
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func keysResponse(id string, res service.PressResult, ignored []string, notices []service.Notice) types.KeysResponse {
	resp := types.KeysResponse{
		SessionID: id,
		Display:   res.Snapshot.Display,
		Pending:   res.Snapshot.Pending.String(),
		State:     res.Snapshot.State.String(),
		Ignored:   ignored,
	}
	for _, c := range res.Commits {
		resp.Committed = append(resp.Committed, c.Expression)
	}
	for _, n := range notices {
		resp.Notices = append(resp.Notices, noticeJSON(n))
	}
	return resp
}

func noticeJSON(n service.Notice) types.Notice {
	return types.Notice{Kind: n.Kind, Expression: n.Expression, Message: n.Message()}
}

// parseKeys turns request tokens into keys. A token may hold several keys
// ("12+3"); tokens with nothing recognisable are reported back.
func parseKeys(tokens []string) (keys []calc.Key, ignored []string) {
	for _, tok := range tokens {
		if k, ok := calc.ParseKey(tok); ok {
			keys = append(keys, k)
			continue
		}
		parsed := calc.ParseKeys(tok)
		known := 0
		for _, k := range parsed {
			if k.Kind != calc.KeyUnknown {
				keys = append(keys, k)
				known++
			}
		}
		if known == 0 {
			ignored = append(ignored, tok)
		}
	}
	return keys, ignored
}
