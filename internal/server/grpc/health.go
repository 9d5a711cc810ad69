package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	probeInterval = 15 * time.Second
	probeTimeout  = 3 * time.Second
)

// Probe mirrors database reachability into the health service: the
// reconciler cannot do anything useful without its primary.
type Probe struct {
	hs     *health.Server
	ping   func(context.Context) error
	logger *zap.Logger
	last   healthpb.HealthCheckResponse_ServingStatus
}

// NewProbe builds a probe over the given ping function.
func NewProbe(hs *health.Server, ping func(context.Context) error, logger *zap.Logger) *Probe {
	return &Probe{hs: hs, ping: ping, logger: logger, last: healthpb.HealthCheckResponse_UNKNOWN}
}

// Check pings once and publishes the result for the overall server and
// the reconciler service.
func (p *Probe) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	next := healthpb.HealthCheckResponse_SERVING
	if err := p.ping(ctx); err != nil {
		next = healthpb.HealthCheckResponse_NOT_SERVING
		if p.last != next {
			p.logger.Warn("database unreachable; reporting not serving", zap.Error(err))
		}
	} else if p.last == healthpb.HealthCheckResponse_NOT_SERVING {
		p.logger.Info("database reachable again")
	}
	p.last = next
	p.hs.SetServingStatus("", next)
	p.hs.SetServingStatus(ReconcilerService, next)
	return next
}

// Watch checks immediately and then every interval until ctx ends.
func (p *Probe) Watch(ctx context.Context, interval time.Duration) {
	p.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
