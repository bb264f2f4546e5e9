package fleet

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

// CredentialResolver returns the credential chain for a host: the
// host's own credential first, then the fleet fallback when one is
// configured and distinct. The legacy fleet kept two credential sets
// because reimaged machines lag behind password rotations.
type CredentialResolver interface {
	Resolve(server *domain.Server) ([]config.Credential, error)
}

// ConfigCredentials resolves credentials from the static AppConfig.
type ConfigCredentials struct {
	cfg *config.AppConfig
}

func NewConfigCredentials(cfg *config.AppConfig) *ConfigCredentials {
	return &ConfigCredentials{cfg: cfg}
}

func (c *ConfigCredentials) Resolve(server *domain.Server) ([]config.Credential, error) {
	primary, ok := c.cfg.Credentials[server.Credential]
	if !ok {
		return nil, errors.Errorf("host %s references unknown credential %q", server.Name, server.Credential)
	}
	chain := []config.Credential{primary}
	if c.cfg.FallbackCredential != "" && c.cfg.FallbackCredential != server.Credential {
		if fallback, ok := c.cfg.Credentials[c.cfg.FallbackCredential]; ok {
			chain = append(chain, fallback)
		}
	}
	return chain, nil
}

// Prober verifies SSH reachability with a handshake-only attempt and is
// the sole writer of connectivity_status. Probe failures are expected
// steady-state for rebooting or decommissioned hosts and never raise;
// only a failed status upsert is returned as an error.
type Prober struct {
	dialer     Dialer
	creds      CredentialResolver
	statusRepo StatusRepository
	timeout    time.Duration
}

func NewProber(dialer Dialer, creds CredentialResolver, statusRepo StatusRepository, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{dialer: dialer, creds: creds, statusRepo: statusRepo, timeout: timeout}
}

// Probe attempts an SSH handshake and upserts exactly one status row.
func (p *Prober) Probe(ctx context.Context, server *domain.Server) (*domain.ServerConnectivity, error) {
	now := time.Now()
	status := &domain.ServerConnectivity{
		ServerID:      server.ID,
		LastCheckedAt: now,
		UpdatedAt:     now,
	}

	chain, err := p.creds.Resolve(server)
	if err != nil {
		status.Reachable = false
		status.LastError = ReasonAuth
		zap.L().Warn("probe credential resolution failed",
			zap.String("host", server.Name), zap.Error(err))
		return status, p.statusRepo.Upsert(ctx, status)
	}

	var lastErr error
	for _, cred := range chain {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		runner, err := p.dialer.Dial(probeCtx, server, cred)
		cancel()
		if err == nil {
			_ = runner.Close()
			status.Reachable = true
			status.LastError = ""
			return status, p.statusRepo.Upsert(ctx, status)
		}
		lastErr = err
	}

	status.Reachable = false
	status.LastError = ClassifyProbeError(lastErr)
	zap.L().Debug("host unreachable",
		zap.String("host", server.Name),
		zap.String("reason", status.LastError),
		zap.Error(lastErr))
	return status, p.statusRepo.Upsert(ctx, status)
}

// ClassifyProbeError maps a transport error to a stable reason label
// for the last_error column.
func ClassifyProbeError(err error) string {
	if err == nil {
		return ReasonOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "auth"):
		return ReasonAuth
	case strings.Contains(msg, "connection refused"):
		return ReasonRefused
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ReasonTimeout
	case strings.Contains(msg, "no such host"):
		return ReasonDNS
	default:
		return ReasonOther
	}
}
