package otlp

import (
	"context"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
)

// MetricsHandler implements the OTLP MetricsService gRPC contract.
// spec.md §6: "Metrics requests are accepted and succeed without side
// effects" -- there is no metrics entity in the data model, so this
// only satisfies the export contract for producers that send all three
// signal types to the same collector endpoint.
type MetricsHandler struct {
	colmetricspb.UnimplementedMetricsServiceServer
}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (h *MetricsHandler) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}
