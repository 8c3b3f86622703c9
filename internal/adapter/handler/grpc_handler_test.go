package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCClient(t *testing.T, f *fixture) (*ItemServiceClient, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryLoggingInterceptor(zap.NewNop()),
		UnaryAuthInterceptor(f.resolver, zap.NewNop()),
	))
	NewGRPCHandler(f.itemService).Register(srv)
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewItemServiceClient(conn), conn
}

func withAuth(ctx context.Context, auth string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", auth)
}

func ptr[T any](v T) *T { return &v }

func TestGRPC_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	client, _ := newGRPCClient(t, f)
	ctx := withAuth(t.Context(), token(t, 42))

	created, err := client.CreateItem(ctx, &CreateItemRequest{
		Name: ptr("Widget"), Description: ptr("A widget"), Quantity: ptr(5), Price: ptr(2.5),
	})
	require.NoError(t, err)
	assert.Equal(t, merchant, created.OwnerID)

	updated, err := client.UpdateItem(ctx, &UpdateItemRequest{ID: &created.ID, Price: ptr(3.0)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, updated.Price)
	assert.Equal(t, 5, updated.Quantity)

	items, err := client.GetItems(ctx, &GetItemsRequest{})
	require.NoError(t, err)
	require.Len(t, items.Items, 1)
	assert.Equal(t, *updated, items.Items[0])
}

func TestGRPC_ExplicitIDs(t *testing.T) {
	f := newFixture(t)
	client, _ := newGRPCClient(t, f)
	mine := f.createItem(t, merchant, "Mine")
	theirs := f.createItem(t, otherMerchant, "Theirs")

	items, err := client.GetItems(withAuth(t.Context(), token(t, merchant)), &GetItemsRequest{ItemIDs: []int64{mine.ID, theirs.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ItemResponse{mine, theirs}, items.Items)
}

func TestGRPC_EmptyIDListListsOwnItems(t *testing.T) {
	f := newFixture(t)
	client, _ := newGRPCClient(t, f)
	mine := f.createItem(t, merchant, "Mine")
	f.createItem(t, otherMerchant, "Theirs")

	items, err := client.GetItems(withAuth(t.Context(), token(t, merchant)), &GetItemsRequest{ItemIDs: []int64{}})
	require.NoError(t, err)
	assert.Equal(t, []ItemResponse{mine}, items.Items)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	f := newFixture(t)
	client, _ := newGRPCClient(t, f)
	item := f.createItem(t, merchant, "Widget")

	valid := &CreateItemRequest{Name: ptr("Other"), Description: ptr("d"), Quantity: ptr(1), Price: ptr(1.0)}

	tests := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"no token", func() error {
			_, err := client.CreateItem(t.Context(), valid)
			return err
		}, codes.Unauthenticated},
		{"missing claim", func() error {
			_, err := client.CreateItem(withAuth(t.Context(), "Bearer "+mustSign(t, map[string]any{"sub": "42"})), valid)
			return err
		}, codes.InvalidArgument},
		{"profile service down", func() error {
			_, err := client.CreateItem(withAuth(t.Context(), token(t, flaky)), valid)
			return err
		}, codes.Unavailable},
		{"customer creates", func() error {
			_, err := client.CreateItem(withAuth(t.Context(), token(t, customer)), valid)
			return err
		}, codes.PermissionDenied},
		{"missing field", func() error {
			_, err := client.CreateItem(withAuth(t.Context(), token(t, merchant)), &CreateItemRequest{Name: ptr("x")})
			return err
		}, codes.InvalidArgument},
		{"update unknown item", func() error {
			_, err := client.UpdateItem(withAuth(t.Context(), token(t, merchant)), &UpdateItemRequest{ID: ptr(int64(999)), Quantity: ptr(1)})
			return err
		}, codes.NotFound},
		{"update without id", func() error {
			_, err := client.UpdateItem(withAuth(t.Context(), token(t, merchant)), &UpdateItemRequest{Quantity: ptr(1)})
			return err
		}, codes.InvalidArgument},
		{"update foreign item", func() error {
			_, err := client.UpdateItem(withAuth(t.Context(), token(t, otherMerchant)), &UpdateItemRequest{ID: &item.ID, Quantity: ptr(1)})
			return err
		}, codes.PermissionDenied},
		{"duplicate name", func() error {
			_, err := client.CreateItem(withAuth(t.Context(), token(t, merchant)), &CreateItemRequest{
				Name: ptr("Widget"), Description: ptr("d"), Quantity: ptr(1), Price: ptr(1.0),
			})
			return err
		}, codes.Aborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(tt.call()))
		})
	}
}

func TestGRPC_HealthSkipsAuth(t *testing.T) {
	f := newFixture(t)
	_, conn := newGRPCClient(t, f)

	resp, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
