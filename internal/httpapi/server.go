package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/types"
	"github.com/BrandonDHaskell/abacus/internal/rpcapi"
)

// streamKeepAlive is how often an idle event stream sends a comment line.
const streamKeepAlive = 15 * time.Second

type Dependencies struct {
	Logger         *log.Logger
	Addr           string
	Sessions       *service.SessionRegistry
	HistoryService *service.HistoryService
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	sessions   *service.SessionRegistry
	history    *service.HistoryService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:   d.Logger,
		mux:      mux,
		sessions: d.Sessions,
		history:  d.HistoryService,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/keys", s.handleKeys)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /v1/history", s.handleListHistory)
	mux.HandleFunc("GET /v1/history/stream", s.handleStreamHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleClearHistory)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusCreated, types.CreateSessionResponse{
		SessionID: sess.ID,
		Display:   snap.Display,
		State:     snap.State.String(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	res := service.PressResult{Snapshot: sess.Snapshot()}
	writeJSON(w, http.StatusOK, keysResponse(sess.ID, res, nil, sess.DrainNotices()))
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req types.KeysRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	keys, ignored := parseKeys(req.Keys)
	res := sess.Press(keys)

	// Notices from earlier requests ride along; failures of the writes just
	// queued show up on a later request.
	writeJSON(w, http.StatusOK, keysResponse(sess.ID, res, ignored, sess.DrainNotices()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "unknown_session", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_session", err.Error())
		return nil, false
	}
	return sess, true
}

// ── History ──────────────────────────────────────────────────────────────────

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.history.List(r.Context())
	if err != nil {
		s.writeStoreError(w, "history list", err)
		return
	}

	if wantsProtobuf(r) {
		writeProto(w, http.StatusOK, rpcapi.SnapshotToList(recs))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse(recs))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	if err := s.history.Clear(r.Context(), confirmed); err != nil {
		if errors.Is(err, service.ErrClearNotConfirmed) {
			writeError(w, http.StatusConflict, "confirmation_required", "repeat with ?confirm=true to delete all history")
			return
		}
		s.writeStoreError(w, "history clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamHistory sends the full history as a server-sent event on
// connect and again after every change. Read failures are sent as error
// events; the stream stays open for the next snapshot.
func (s *Server) handleStreamHistory(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	ctx := r.Context()
	snapshots := make(chan []store.Record, 1)
	failures := make(chan error, 1)

	unsubscribe, err := s.history.Subscribe(ctx,
		func(recs []store.Record) {
			select {
			case <-snapshots:
			default:
			}
			snapshots <- recs
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	if err != nil {
		s.writeStoreError(w, "history stream", err)
		return
	}
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(streamKeepAlive)
	defer ping.Stop()

	for {
		var werr error
		select {
		case <-ctx.Done():
			return
		case recs := <-snapshots:
			werr = writeEvent(w, "snapshot", historyResponse(recs))
		case err := <-failures:
			werr = writeEvent(w, "error", types.ErrorResponse{Error: "read_failed", Message: err.Error()})
		case <-ping.C:
			_, werr = fmt.Fprint(w, ": ping\n\n")
		}
		if werr != nil {
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrReadFailed):
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusServiceUnavailable, "read_failed", "history is unavailable")
	case errors.Is(err, store.ErrWriteFailed):
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusServiceUnavailable, "write_failed", "history could not be changed")
	default:
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
