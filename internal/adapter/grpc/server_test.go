package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/tldpricing-backend/internal/adapter/repository/memory"
	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/derivation"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/reconcile"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

const testToken = "test-token-123"

type staticSource struct {
	entries []domain.CatalogEntry
	err     error
}

func (s *staticSource) FetchSnapshot(context.Context) ([]domain.CatalogEntry, error) {
	return s.entries, s.err
}

func testPolicy() domain.PricingPolicy {
	return domain.PricingPolicy{
		Margin:   domain.MarginPolicy{Type: domain.MarginTypePercentage, Value: decimal.NewFromInt(20)},
		Rounding: domain.RoundingPolicy{Type: domain.RoundingUpTo, Increment: decimal.NewFromInt(1000)},
	}
}

// startServer serves the pricing service over an in-memory listener and returns a connected client
func startServer(t *testing.T, source *staticSource) *grpc.ClientConn {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	store := memory.NewPricingStore(1)
	cache := memory.NewPriceCache(clock)
	pipeline := derivation.NewPipeline(time.UTC)
	reconciler := reconcile.NewReconcileService(store, cache, nil, clock, zerolog.Nop())

	server := NewServer(
		pricesync.NewSyncService(source, store, pipeline, reconciler, clock, 2, zerolog.Nop()),
		report.NewReportService(store, cache, source, pipeline, clock, report.ComparisonTermEffective, zerolog.Nop()),
		importer.NewCatalogImporter(store, zerolog.Nop()),
		testPolicy(),
	)

	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(testToken)))
	RegisterPricingServer(grpcServer, server)
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+testToken)
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	out := &structpb.Struct{}
	err = conn.Invoke(authed(), FullMethod(method), req, out)
	return out, err
}

func snapshot() *staticSource {
	return &staticSource{entries: []domain.CatalogEntry{
		{
			Extension:    ".id",
			Registration: "Rp100.000",
			Renewal:      "Rp100.000",
			Transfer:     "Rp50.000",
			Promo: &domain.PromoOffer{
				Registration: "Rp50.000",
				StartDate:    "2024-06-01",
				EndDate:      "2024-06-30",
				Terms:        "2",
			},
		},
		{Extension: ".com", Registration: "150000", Renewal: "150000", Transfer: "150000"},
	}}
}

func TestServer_SyncAndQuery(t *testing.T) {
	conn := startServer(t, snapshot())

	out, err := invoke(t, conn, "Sync", map[string]any{"mode": "all"})
	require.NoError(t, err)
	fields := out.AsMap()
	assert.Equal(t, "all", fields["mode"])
	assert.Equal(t, float64(2), fields["processed_count"])
	assert.Equal(t, float64(2), fields["updated_count"])
	assert.Equal(t, float64(1), fields["promo_count"])
	assert.Empty(t, fields["errors"])

	out, err = invoke(t, conn, "GetPricing", map[string]any{"extension": ".id"})
	require.NoError(t, err)
	detail := out.AsMap()
	assert.Equal(t, "canonical", detail["resolution"])
	rows := detail["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, domain.PromoGroupLabel, row["group"])
	register := row["prices"].(map[string]any)["register"].([]any)
	assert.Nil(t, register[0], "year-1 register stays empty while a promo is active")
	assert.Equal(t, "60000", register[1])

	out, err = invoke(t, conn, "ListPricing", map[string]any{})
	require.NoError(t, err)
	lines := out.AsMap()["rows"].([]any)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	assert.Equal(t, ".com", first["extension"])
	assert.Equal(t, "0", first["register_diff"])

	stats := &structpb.Struct{}
	require.NoError(t, conn.Invoke(authed(), FullMethod("GetStatistics"), &emptypb.Empty{}, stats))
	assert.Equal(t, float64(2), stats.AsMap()["total_extensions"])
	assert.Equal(t, float64(1), stats.AsMap()["promo_extensions"])
}

func TestServer_ImportThenSyncExisting(t *testing.T) {
	conn := startServer(t, snapshot())

	out, err := invoke(t, conn, "ImportExtensions", map[string]any{"extensions": []any{"com", ".net"}})
	require.NoError(t, err)
	assert.Equal(t, []any{".com", ".net"}, out.AsMap()["imported"])

	out, err = invoke(t, conn, "Sync", map[string]any{"mode": "existing"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.AsMap()["processed_count"])
	assert.Equal(t, float64(0), out.AsMap()["created_count"])
}

func TestServer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source *staticSource
		method string
		in     map[string]any
		code   codes.Code
	}{
		{
			name:   "upstream unavailable",
			source: &staticSource{err: &domain.FetchError{URL: "http://upstream", StatusCode: 503}},
			method: "Sync",
			in:     map[string]any{"mode": "all"},
			code:   codes.Unavailable,
		},
		{name: "unknown mode", source: snapshot(), method: "Sync", in: map[string]any{"mode": "weekly"}, code: codes.InvalidArgument},
		{name: "selected without names", source: snapshot(), method: "Sync", in: map[string]any{"mode": "selected"}, code: codes.InvalidArgument},
		{name: "extensions not a list", source: snapshot(), method: "Sync", in: map[string]any{"mode": "selected", "extensions": ".id"}, code: codes.InvalidArgument},
		{name: "empty import", source: snapshot(), method: "ImportExtensions", in: map[string]any{}, code: codes.InvalidArgument},
		{name: "missing extension", source: snapshot(), method: "GetPricing", in: map[string]any{}, code: codes.InvalidArgument},
		{name: "unknown extension", source: snapshot(), method: "GetPricing", in: map[string]any{"extension": ".xyz"}, code: codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startServer(t, tt.source)
			_, err := invoke(t, conn, tt.method, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_RejectsMissingToken(t *testing.T) {
	conn := startServer(t, snapshot())

	err := conn.Invoke(context.Background(), FullMethod("GetStatistics"), &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
