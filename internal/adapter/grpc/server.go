package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/tldpricing-backend/internal/adapter/presenter"
	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

// Server implements the PricingService gRPC server
type Server struct {
	SyncService   *pricesync.SyncService
	ReportService *report.ReportService
	Importer      *importer.CatalogImporter
	Policy        domain.PricingPolicy
}

// NewServer creates a new gRPC server instance
func NewServer(
	syncService *pricesync.SyncService,
	reportService *report.ReportService,
	catalogImporter *importer.CatalogImporter,
	policy domain.PricingPolicy,
) *Server {
	return &Server{
		SyncService:   syncService,
		ReportService: reportService,
		Importer:      catalogImporter,
		Policy:        policy,
	}
}

// Sync handles the Sync RPC.
// Request fields: mode ("all", "existing", "selected") and extensions (list, selected mode only).
func (s *Server) Sync(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	mode, err := pricesync.ParseMode(stringField(fields, "mode"))
	if err != nil {
		return nil, mapError(err)
	}

	extensions, err := stringList(fields, "extensions")
	if err != nil {
		return nil, err
	}

	result, err := s.SyncService.Sync(ctx, mode, s.Policy, extensions)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(presenter.Sync(result))
}

// ImportExtensions handles the ImportExtensions RPC
func (s *Server) ImportExtensions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	extensions, err := stringList(req.AsMap(), "extensions")
	if err != nil {
		return nil, err
	}

	result, err := s.Importer.Import(ctx, extensions)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(presenter.Import(result))
}

// ListPricing handles the ListPricing RPC.
// source "live" derives a fresh snapshot; anything else compares against the cache.
func (s *Server) ListPricing(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		rows []report.ComparisonRow
		err  error
	)
	if stringField(req.AsMap(), "source") == "live" {
		rows, err = s.ReportService.Compare(ctx, s.Policy)
	} else {
		rows, err = s.ReportService.CompareCached(ctx)
	}
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(map[string]any{"rows": presenter.Comparison(rows)})
}

// GetPricing handles the GetPricing RPC
func (s *Server) GetPricing(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	detail, err := s.ReportService.Show(ctx, stringField(req.AsMap(), "extension"))
	if err != nil {
		return nil, mapError(err)
	}
	if len(detail.Rows) == 0 && detail.Cached == nil {
		return nil, status.Errorf(codes.NotFound, "extension %s not found", detail.Extension)
	}

	return toStruct(presenter.Detail(detail))
}

// GetStatistics handles the GetStatistics RPC
func (s *Server) GetStatistics(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.ReportService.Statistics(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(presenter.Statistics(stats))
}

// toStruct converts a JSON view into a protobuf Struct
func toStruct(view any) (*structpb.Struct, error) {
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return out, nil
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func stringList(fields map[string]any, key string) ([]string, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a list of strings", key)
	}

	values := make([]string, 0, len(list))
	for _, item := range list {
		value, ok := item.(string)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "%s must be a list of strings", key)
		}
		values = append(values, value)
	}
	return values, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var (
		fetchErr  *domain.FetchError
		configErr *domain.ConfigError
	)

	switch {
	case errors.As(err, &fetchErr):
		return status.Errorf(codes.Unavailable, "%s", err.Error())
	case errors.As(err, &configErr),
		errors.Is(err, domain.ErrMissingExtension),
		errors.Is(err, pricesync.ErrNoExtensions),
		errors.Is(err, importer.ErrNothingToImport):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", err.Error())
}

var _ PricingServer = (*Server)(nil)
