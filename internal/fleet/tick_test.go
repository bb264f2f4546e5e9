package fleet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

func TestDueHosts(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	defaultInterval := 5 * time.Minute

	servers := []domain.Server{
		{ID: 1, Name: "never-collected"},
		{ID: 2, Name: "due", LastCollectedAt: now.Add(-6 * time.Minute)},
		{ID: 3, Name: "not-due", LastCollectedAt: now.Add(-2 * time.Minute)},
		{ID: 4, Name: "custom-due", PollInterval: 60, LastCollectedAt: now.Add(-90 * time.Second)},
		{ID: 5, Name: "custom-not-due", PollInterval: 600, LastCollectedAt: now.Add(-6 * time.Minute)},
		{ID: 6, Name: "exactly-at-interval", LastCollectedAt: now.Add(-defaultInterval)},
	}

	due := DueHosts(servers, now, defaultInterval)

	want := map[int64]bool{1: true, 2: true, 4: true, 6: true}
	if len(due) != len(want) {
		t.Fatalf("got %d due hosts, want %d", len(due), len(want))
	}
	for _, server := range due {
		if !want[server.ID] {
			t.Errorf("server %d (%s) should not be due", server.ID, server.Name)
		}
	}
}

func TestTickRunnerBoundsConcurrency(t *testing.T) {
	var inflight, peak int64
	pipeline := func(ctx context.Context, server domain.Server) PipelineResult {
		n := atomic.AddInt64(&inflight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		return PipelineResult{Server: server, Sample: &domain.MetricSample{ServerID: server.ID}}
	}

	runner, err := NewTickRunner(2, time.Second, pipeline)
	if err != nil {
		t.Fatalf("NewTickRunner: %v", err)
	}
	defer runner.Release()

	servers := make([]domain.Server, 6)
	for i := range servers {
		servers[i] = domain.Server{ID: int64(i + 1)}
	}
	summary := runner.RunTick(context.Background(), servers)

	if summary.Collected != len(servers) {
		t.Errorf("collected %d, want %d", summary.Collected, len(servers))
	}
	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Errorf("peak concurrency %d exceeds pool size 2", got)
	}
}

func TestTickRunnerRecoversPanic(t *testing.T) {
	pipeline := func(ctx context.Context, server domain.Server) PipelineResult {
		if server.ID == 2 {
			panic("parser exploded")
		}
		return PipelineResult{Server: server, Sample: &domain.MetricSample{ServerID: server.ID}}
	}

	runner, err := NewTickRunner(4, time.Second, pipeline)
	if err != nil {
		t.Fatalf("NewTickRunner: %v", err)
	}
	defer runner.Release()

	summary := runner.RunTick(context.Background(), []domain.Server{{ID: 1}, {ID: 2}, {ID: 3}})

	if summary.Collected != 2 {
		t.Errorf("collected %d, want 2", summary.Collected)
	}
	if summary.Failed != 1 {
		t.Errorf("failed %d, want 1: a panicking host must not sink the tick", summary.Failed)
	}
}

func TestTickRunnerCountsLost(t *testing.T) {
	pipeline := func(ctx context.Context, server domain.Server) PipelineResult {
		return PipelineResult{Server: server, Lost: true, Err: context.DeadlineExceeded}
	}

	runner, err := NewTickRunner(2, time.Second, pipeline)
	if err != nil {
		t.Fatalf("NewTickRunner: %v", err)
	}
	defer runner.Release()

	summary := runner.RunTick(context.Background(), []domain.Server{{ID: 1}})
	if summary.Lost != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want Lost=1", summary)
	}
}
