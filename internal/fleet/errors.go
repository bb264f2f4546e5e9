package fleet

import "fmt"

// Stage identifies where a host pipeline failed.
type Stage string

const (
	StageProbe Stage = "probe"
	StageExec  Stage = "exec"
	StageParse Stage = "parse"
)

// Probe failure classifications stored in connectivity_status.last_error.
// Unreachable hosts are expected steady-state, so these are labels, not
// escalating errors.
const (
	ReasonAuth    = "auth_failed"
	ReasonRefused = "connection_refused"
	ReasonTimeout = "timeout"
	ReasonDNS     = "dns_error"
	ReasonOther   = "unreachable"
)

// CollectionError describes a failed collection attempt for one host on
// one tick. No partial sample is ever written alongside it.
type CollectionError struct {
	ServerID int64
	Host     string
	Stage    Stage
	Cause    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s (server %d) failed at %s: %v", e.Host, e.ServerID, e.Stage, e.Cause)
}

func (e *CollectionError) Unwrap() error {
	return e.Cause
}

// UnreachableError marks a host whose probe failed; collection is
// skipped for the tick and the classified reason is recorded.
type UnreachableError struct {
	ServerID int64
	Host     string
	Reason   string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("host %s (server %d) unreachable: %s", e.Host, e.ServerID, e.Reason)
}
