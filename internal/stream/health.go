package stream

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter exposes the streams over the standard gRPC health service.
// Each stream is a service named after it: NOT_SERVING until a user is
// added, SERVING while one is ready. The overall service ("") reports
// SERVING while the process runs.
type HealthReporter struct {
	server *health.Server

	mu    sync.Mutex
	names []string
}

// NewHealthReporter registers names as NOT_SERVING.
func NewHealthReporter(names ...string) *HealthReporter {
	h := &HealthReporter{server: health.NewServer(), names: names}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register installs the health service on s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Server returns the underlying health server.
func (h *HealthReporter) Server() healthpb.HealthServer { return h.server }

func (h *HealthReporter) UserAdded(uint32) {
	h.set(healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthReporter) UserRemoved(uint32) {
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthReporter) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server.Shutdown()
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range h.names {
		h.server.SetServingStatus(name, status)
	}
}
