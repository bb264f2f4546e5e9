package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string // command -> canned output
	runErr  error
	delay   time.Duration
	closed  bool
}

func (r *fakeRunner) Run(ctx context.Context, command string) (string, error) {
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if r.runErr != nil {
		return "", r.runErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[command], nil
}

func (r *fakeRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRunner) wasClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeDialer struct {
	mu        sync.Mutex
	dialErr   error
	errByUser map[string]error // per-credential dial outcome
	dialDelay time.Duration
	runner    *fakeRunner
	dials     int
}

func (d *fakeDialer) Dial(ctx context.Context, server *domain.Server, cred config.Credential) (Runner, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if d.dialDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.dialDelay):
		}
	}
	if d.errByUser != nil {
		if err, ok := d.errByUser[cred.Username]; ok {
			if err != nil {
				return nil, err
			}
			return d.currentRunner(), nil
		}
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.currentRunner(), nil
}

func (d *fakeDialer) currentRunner() Runner {
	if d.runner != nil {
		return d.runner
	}
	return &fakeRunner{outputs: map[string]string{}}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeCreds struct {
	chain []config.Credential
}

func (c *fakeCreds) Resolve(server *domain.Server) ([]config.Credential, error) {
	return c.chain, nil
}

type memStatusRepo struct {
	mu      sync.Mutex
	rows    map[int64]domain.ServerConnectivity
	upserts int
	err     error
}

func newMemStatusRepo() *memStatusRepo {
	return &memStatusRepo{rows: map[int64]domain.ServerConnectivity{}}
}

func (r *memStatusRepo) Upsert(ctx context.Context, status *domain.ServerConnectivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upserts++
	r.rows[status.ServerID] = *status
	return nil
}

func (r *memStatusRepo) GetByServerID(ctx context.Context, serverID int64) (*domain.ServerConnectivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[serverID]
	if !ok {
		return nil, context.Canceled
	}
	return &row, nil
}

type memSampleRepo struct {
	mu      sync.Mutex
	samples map[[2]int64]domain.MetricSample // (server_id, unix) -> sample
	err     error
}

func newMemSampleRepo() *memSampleRepo {
	return &memSampleRepo{samples: map[[2]int64]domain.MetricSample{}}
}

func (r *memSampleRepo) Insert(ctx context.Context, sample *domain.MetricSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	key := [2]int64{sample.ServerID, sample.CollectedAt.Unix()}
	if _, exists := r.samples[key]; !exists {
		r.samples[key] = *sample
	}
	return nil
}

func (r *memSampleRepo) LatestCollectedAt(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for _, s := range r.samples {
		if s.CollectedAt.After(latest) {
			latest = s.CollectedAt
		}
	}
	return latest, nil
}

func (r *memSampleRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *memSampleRepo) all() []domain.MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MetricSample
	for _, s := range r.samples {
		out = append(out, s)
	}
	return out
}

type memServerRepo struct {
	mu      sync.Mutex
	servers []domain.Server
	touched map[int64]time.Time
}

func newMemServerRepo(servers ...domain.Server) *memServerRepo {
	return &memServerRepo{servers: servers, touched: map[int64]time.Time{}}
}

func (r *memServerRepo) ListEnabled(ctx context.Context) ([]domain.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Server(nil), r.servers...), nil
}

func (r *memServerRepo) GetByID(ctx context.Context, id int64) (*domain.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.servers {
		if r.servers[i].ID == id {
			s := r.servers[i]
			return &s, nil
		}
	}
	return nil, context.Canceled
}

func (r *memServerRepo) TouchCollected(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[id] = at
	return nil
}
