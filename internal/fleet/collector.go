package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/fleet/clients"
)

// Collector reads the three utilization metrics from a reachable host.
// It does not re-probe: the caller is responsible for gating on the
// host's connectivity status first.
type Collector struct {
	dialer Dialer
	creds  CredentialResolver
}

func NewCollector(dialer Dialer, creds CredentialResolver) *Collector {
	return &Collector{dialer: dialer, creds: creds}
}

// Collect opens one SSH transport, runs the per-OS resource queries,
// and parses them into an atomic MetricSample. Any failure returns a
// *CollectionError and no sample; the transport is torn down on every
// exit path.
func (c *Collector) Collect(ctx context.Context, server *domain.Server) (*domain.MetricSample, error) {
	dialect, err := clients.ForFamily(server.OsFamily)
	if err != nil {
		return nil, &CollectionError{ServerID: server.ID, Host: server.Name, Stage: StageExec, Cause: err}
	}

	chain, err := c.creds.Resolve(server)
	if err != nil {
		return nil, &CollectionError{ServerID: server.ID, Host: server.Name, Stage: StageProbe, Cause: err}
	}

	runner, err := c.dial(ctx, server, chain)
	if err != nil {
		return nil, &CollectionError{ServerID: server.ID, Host: server.Name, Stage: StageProbe, Cause: err}
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			zap.L().Debug("ssh close", zap.String("host", server.Name), zap.Error(cerr))
		}
	}()

	collectedAt := time.Now().UTC().Truncate(time.Second)

	queries := []struct {
		command string
		parse   func(string) (float64, error)
		target  *float64
	}{
		{dialect.QueryCPU(), dialect.ParseCPU, nil},
		{dialect.QueryMemory(), dialect.ParseMemory, nil},
		{dialect.QueryDiskC(), dialect.ParseDiskC, nil},
	}

	sample := &domain.MetricSample{
		ServerID:    server.ID,
		CollectedAt: collectedAt,
	}
	queries[0].target = &sample.CpuPct
	queries[1].target = &sample.MemPct
	queries[2].target = &sample.DiskCPct

	for _, q := range queries {
		output, err := runner.Run(ctx, q.command)
		if err != nil {
			return nil, &CollectionError{ServerID: server.ID, Host: server.Name, Stage: StageExec, Cause: err}
		}
		value, err := q.parse(output)
		if err != nil {
			// Fail closed: a sample is atomic across all three metrics.
			return nil, &CollectionError{ServerID: server.ID, Host: server.Name, Stage: StageParse, Cause: err}
		}
		*q.target = value
	}

	return sample, nil
}

func (c *Collector) dial(ctx context.Context, server *domain.Server, chain []config.Credential) (Runner, error) {
	var lastErr error
	for _, cred := range chain {
		runner, err := c.dialer.Dial(ctx, server, cred)
		if err == nil {
			return runner, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
