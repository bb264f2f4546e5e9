package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

// PipelineFunc runs one host's pipeline under ctx. Production wiring
// uses (*Service).RunPipeline; tests substitute fakes.
type PipelineFunc func(ctx context.Context, server domain.Server) PipelineResult

// TickSummary aggregates one tick across the fleet.
type TickSummary struct {
	Total       int
	Collected   int
	Unreachable int
	Failed      int
	Lost        int
	Elapsed     time.Duration
}

// TickRunner fans one tick's collection work out across the fleet with
// bounded concurrency and a per-host timeout. Host pipelines are fully
// isolated: one host timing out or failing never delays a sibling, and
// the tick completes once every dispatched host finished or timed out.
type TickRunner struct {
	pool        *ants.Pool
	hostTimeout time.Duration
	run         PipelineFunc
}

func NewTickRunner(maxWorkers int, hostTimeout time.Duration, run PipelineFunc) (*TickRunner, error) {
	if maxWorkers <= 0 {
		maxWorkers = 25
	}
	if hostTimeout <= 0 {
		return nil, errors.New("host timeout must be positive")
	}
	pool, err := ants.NewPool(maxWorkers, ants.WithNonblocking(false))
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	return &TickRunner{pool: pool, hostTimeout: hostTimeout, run: run}, nil
}

// RunTick dispatches every server and waits for completion. Results
// arrive in no particular order across hosts; within one host the
// pipeline stages are strictly sequential.
func (t *TickRunner) RunTick(ctx context.Context, servers []domain.Server) TickSummary {
	start := time.Now()
	summary := TickSummary{Total: len(servers)}

	results := make([]PipelineResult, len(servers))
	var wg sync.WaitGroup
	for i := range servers {
		i := i
		server := servers[i]
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zap.S().Errorf("pipeline panic for %s: %v", server.Name, r)
					results[i] = PipelineResult{Server: server, Err: errors.Errorf("pipeline panic: %v", r)}
				}
			}()
			hostCtx, cancel := context.WithTimeout(ctx, t.hostTimeout)
			defer cancel()
			results[i] = t.run(hostCtx, server)
		}
		if err := t.pool.Submit(submit); err != nil {
			wg.Done()
			results[i] = PipelineResult{Server: server, Err: errors.Wrap(err, "dispatch")}
		}
	}
	wg.Wait()

	for _, result := range results {
		switch {
		case result.Lost:
			summary.Lost++
		case result.Err == nil && result.Sample != nil:
			summary.Collected++
		default:
			var unreachable *UnreachableError
			if errors.As(result.Err, &unreachable) {
				summary.Unreachable++
			} else {
				summary.Failed++
			}
		}
	}
	summary.Elapsed = time.Since(start)
	return summary
}

// Release returns the worker pool's resources.
func (t *TickRunner) Release() {
	t.pool.Release()
}

// DueHosts filters servers whose per-host interval has elapsed since
// their last collection. A zero per-host interval inherits the default.
func DueHosts(servers []domain.Server, now time.Time, defaultInterval time.Duration) []domain.Server {
	var due []domain.Server
	for _, server := range servers {
		interval := time.Duration(server.PollInterval) * time.Second
		if interval <= 0 {
			interval = defaultInterval
		}
		if server.LastCollectedAt.IsZero() || !now.Before(server.LastCollectedAt.Add(interval)) {
			due = append(due, server)
		}
	}
	return due
}
