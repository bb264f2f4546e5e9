package fleet

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

// Runner executes commands on one remote host over an established SSH
// transport. Close is safe to call more than once.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens SSH transports to inventory hosts. The probe path uses
// it for a handshake-only check; the collect path keeps the transport
// open across the three resource queries.
type Dialer interface {
	Dial(ctx context.Context, server *domain.Server, cred config.Credential) (Runner, error)
}

// SSHDialer is the production Dialer backed by golang.org/x/crypto/ssh.
type SSHDialer struct {
	ConnectTimeout time.Duration
}

func NewSSHDialer(connectTimeout time.Duration) *SSHDialer {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &SSHDialer{ConnectTimeout: connectTimeout}
}

func (d *SSHDialer) Dial(ctx context.Context, server *domain.Server, cred config.Credential) (Runner, error) {
	auth, err := authMethods(cred)
	if err != nil {
		return nil, err
	}

	port := server.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(server.Address, fmt.Sprintf("%d", port))

	clientConfig := &ssh.ClientConfig{
		User: cred.Username,
		Auth: auth,
		// Fleet hosts are reimaged often; key pinning lives outside the
		// collector's scope, matching the legacy known_hosts=None setup.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.ConnectTimeout,
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, clientConfig)
		done <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		// The dial goroutine finishes on its own Timeout and the late
		// client, if any, is closed immediately.
		go func() {
			if r := <-done; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &sshRunner{client: r.client}, nil
	}
}

func authMethods(cred config.Credential) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cred.PrivateKeyFile != "" {
		key, err := os.ReadFile(cred.PrivateKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "read private key")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cred.Passwd != "" {
		methods = append(methods, ssh.Password(cred.Passwd))
	}
	if len(methods) == 0 {
		return nil, errors.New("credential has neither password nor private key")
	}
	return methods, nil
}

type sshRunner struct {
	client    *ssh.Client
	closeOnce sync.Once
	closeErr  error
}

// Run executes one command in a fresh session. On context expiry the
// whole transport is torn down, which unblocks the in-flight session.
func (r *sshRunner) Run(ctx context.Context, command string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "open session")
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- execResult{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = r.Close()
		<-done
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			// Remote commands may exit nonzero while still printing the
			// counters (wmic does this on localized builds); hand the
			// output to the parser and let it decide.
			if len(res.output) > 0 {
				zap.L().Debug("remote command exited nonzero",
					zap.String("command", command), zap.Error(res.err))
				return string(res.output), nil
			}
			return "", res.err
		}
		return string(res.output), nil
	}
}

func (r *sshRunner) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.client.Close()
	})
	return r.closeErr
}
