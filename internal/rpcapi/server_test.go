package rpcapi_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/memory"
	"github.com/BrandonDHaskell/abacus/internal/rpcapi"
)

type harness struct {
	history *memory.HistoryStore
	conn    *grpc.ClientConn
	client  *rpcapi.CollectionClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	history := memory.New()
	lis := bufconn.Listen(1 << 20)
	g, _ := rpcapi.NewGRPCServer(rpcapi.Dependencies{
		Logger:  log.New(io.Discard, "", 0),
		History: history,
	})
	go func() { _ = g.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		g.Stop()
		_ = history.Close()
	})

	return &harness{history: history, conn: conn, client: rpcapi.NewCollectionClient(conn)}
}

func addDoc(expr, result string) *structpb.Struct {
	return rpcapi.NewRecordToStruct(store.NewRecord{Expression: expr, Result: result})
}

func TestAddListClear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.client.Add(ctx, addDoc("5 + 3", "8"))
	require.NoError(t, err)
	rec, err := rpcapi.RecordFromStruct(out)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "5 + 3", rec.Expression)
	assert.Equal(t, "8", rec.Result)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = h.client.Add(ctx, addDoc("25 + 2", "27"))
	require.NoError(t, err)

	list, err := h.client.List(ctx)
	require.NoError(t, err)
	recs, err := rpcapi.SnapshotFromList(list)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "25 + 2", recs[0].Expression)
	assert.Equal(t, "5 + 3", recs[1].Expression)

	require.NoError(t, h.client.Clear(ctx))

	list, err = h.client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.GetValues())
}

func TestAddRejectsIncompleteDocument(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Add(context.Background(), addDoc("", "8"))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	all, err := h.history.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.history.FailWrites(errors.New("disk full"))
	_, err := h.client.Add(ctx, addDoc("1 + 1", "2"))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, codes.Unavailable, status.Code(h.client.Clear(ctx)))

	h.history.FailReads(errors.New("io error"))
	_, err = h.client.List(ctx)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestWatchStreamsSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := h.client.Add(ctx, addDoc("1 + 1", "2"))
	require.NoError(t, err)

	stream, err := h.client.Watch(ctx)
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Len(t, first.GetValues(), 1, "watch opens with the current snapshot")

	_, err = h.client.Add(ctx, addDoc("2 + 2", "4"))
	require.NoError(t, err)

	next, err := stream.Recv()
	require.NoError(t, err)
	recs, err := rpcapi.SnapshotFromList(next)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2 + 2", recs[0].Expression)

	require.NoError(t, h.client.Clear(ctx))
	cleared, err := stream.Recv()
	require.NoError(t, err)
	assert.Empty(t, cleared.GetValues())
}

func TestWatchFailsWhenStoreUnreadable(t *testing.T) {
	h := newHarness(t)
	h.history.FailReads(errors.New("io error"))

	stream, err := h.client.Watch(context.Background())
	require.NoError(t, err)

	_, err = stream.Recv()
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHealthServing(t *testing.T) {
	h := newHarness(t)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: rpcapi.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
