package server

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	aegisv1 "github.com/ppiankov/aegis/api/aegis/v1"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

// Health is the gRPC health service. As an engine sink it marks the
// vehicle service NOT_SERVING while safe mode is returning to launch.
type Health struct {
	srv *health.Server
}

// NewHealth reports every service as serving.
func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	for _, svc := range []string{"", aegisv1.ServiceName, aegisv1.VehicleService} {
		h.srv.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
	return h
}

// OnDecision implements engine.Sink.
func (h *Health) OnDecision(engine.Outcome) {}

// OnSafeMode implements engine.Sink.
func (h *Health) OnSafeMode(tr model.SafeModeTransition) {
	status := healthpb.HealthCheckResponse_SERVING
	if tr.To == model.SafeReturnToLaunch {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(aegisv1.VehicleService, status)
}

// Shutdown marks everything NOT_SERVING ahead of a stop.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}
