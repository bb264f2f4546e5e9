package fleet

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

// EventBus topics published by the pipeline. Subscribers (ops logging,
// gauges) must not block; publishes are fire-and-forget.
const (
	TopicSamplePersisted = "fleet:sample_persisted"
	TopicHostUnreachable = "fleet:host_unreachable"
	TopicCollectFailed   = "fleet:collect_failed"
)

// SampleWriter is the subset of SampleRepository the pipeline needs,
// normally satisfied by RetryingSampleWriter.
type SampleWriter interface {
	Insert(ctx context.Context, sample *domain.MetricSample) error
}

// PipelineResult summarizes one host's probe+collect+persist run.
type PipelineResult struct {
	Server    domain.Server
	Reachable bool
	Sample    *domain.MetricSample
	Err       error
	Lost      bool // sample collected but storage retries exhausted
	Elapsed   time.Duration
}

func (r PipelineResult) OK() bool {
	return r.Err == nil && !r.Lost
}

// Service runs the per-host collection pipeline: probe, gate, collect,
// persist. One host's failure never affects another; every error path
// is recorded and returned, not raised across the tick.
type Service struct {
	prober    *Prober
	collector *Collector
	servers   ServerRepository
	writer    SampleWriter
	bus       EventBus.Bus
}

func NewService(prober *Prober, collector *Collector, servers ServerRepository, writer SampleWriter, bus EventBus.Bus) *Service {
	return &Service{
		prober:    prober,
		collector: collector,
		servers:   servers,
		writer:    writer,
		bus:       bus,
	}
}

// RunPipeline executes the full pipeline for a single host. ctx carries
// the per-host timeout; expiry cancels only this host's work.
func (s *Service) RunPipeline(ctx context.Context, server domain.Server) PipelineResult {
	start := time.Now()
	result := PipelineResult{Server: server}
	defer func() {
		result.Elapsed = time.Since(start)
	}()

	status, err := s.prober.Probe(ctx, &server)
	if err != nil {
		// Status row write failed; the probe outcome itself still gates
		// collection below.
		zap.L().Error("connectivity status write failed",
			zap.String("host", server.Name), zap.Error(err))
	}
	result.Reachable = status.Reachable

	if !status.Reachable {
		result.Err = &UnreachableError{ServerID: server.ID, Host: server.Name, Reason: status.LastError}
		s.publish(TopicHostUnreachable, result)
		return result
	}

	sample, err := s.collector.Collect(ctx, &server)
	if err != nil {
		result.Err = err
		s.publish(TopicCollectFailed, result)
		return result
	}
	result.Sample = sample

	if err := s.writer.Insert(ctx, sample); err != nil {
		result.Lost = true
		result.Err = err
		zap.L().Error("sample lost after storage retries",
			zap.String("host", server.Name), zap.Error(err))
		return result
	}

	if err := s.servers.TouchCollected(ctx, server.ID, sample.CollectedAt); err != nil {
		zap.L().Warn("failed to update last_collected_at",
			zap.String("host", server.Name), zap.Error(err))
	}

	s.publish(TopicSamplePersisted, result)
	return result
}

// ProbeAll runs a one-shot probe of every enabled host sequentially,
// for the check-connectivity command. Returns the statuses and the
// count of unreachable hosts.
func (s *Service) ProbeAll(ctx context.Context) ([]domain.ServerConnectivity, int, error) {
	servers, err := s.servers.ListEnabled(ctx)
	if err != nil {
		return nil, 0, err
	}
	var statuses []domain.ServerConnectivity
	unreachable := 0
	for i := range servers {
		status, err := s.prober.Probe(ctx, &servers[i])
		if err != nil {
			zap.L().Error("connectivity status write failed",
				zap.String("host", servers[i].Name), zap.Error(err))
		}
		if !status.Reachable {
			unreachable++
		}
		statuses = append(statuses, *status)
	}
	return statuses, unreachable, nil
}

func (s *Service) publish(topic string, result PipelineResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, result)
}
