package fleet

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/fleet/clients"
)

// windowsOutputs yields CPU=12.5, MEM=40.0, DISK=78.2 through the
// windows dialect parsers.
func windowsOutputs() map[string]string {
	var w clients.WindowsCommands
	return map[string]string{
		w.QueryCPU():    `"02/14/2026 09:30:01.000","12.500000"`,
		w.QueryMemory(): "FreePhysicalMemory=600000\nTotalVisibleMemorySize=1000000",
		w.QueryDiskC():  "FreeSpace=218\nSize=1000",
	}
}

func TestCollectSuccess(t *testing.T) {
	runner := &fakeRunner{outputs: windowsOutputs()}
	collector := NewCollector(&fakeDialer{runner: runner}, singleCred())

	sample, err := collector.Collect(context.Background(), testServer())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if sample.ServerID != 101 {
		t.Errorf("ServerID = %d, want 101", sample.ServerID)
	}
	if math.Abs(sample.CpuPct-12.5) > 1e-9 {
		t.Errorf("CpuPct = %v, want 12.5", sample.CpuPct)
	}
	if math.Abs(sample.MemPct-40.0) > 1e-9 {
		t.Errorf("MemPct = %v, want 40.0", sample.MemPct)
	}
	if math.Abs(sample.DiskCPct-78.2) > 1e-9 {
		t.Errorf("DiskCPct = %v, want 78.2", sample.DiskCPct)
	}
	if sample.CollectedAt.IsZero() {
		t.Error("CollectedAt not set")
	}
	if !runner.wasClosed() {
		t.Error("transport leaked on success path")
	}
}

func TestCollectFailsClosedOnParse(t *testing.T) {
	outputs := windowsOutputs()
	var w clients.WindowsCommands
	outputs[w.QueryDiskC()] = "Access is denied."
	runner := &fakeRunner{outputs: outputs}
	collector := NewCollector(&fakeDialer{runner: runner}, singleCred())

	sample, err := collector.Collect(context.Background(), testServer())
	if sample != nil {
		t.Error("expected no sample when one metric is unparseable")
	}
	var cerr *CollectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CollectionError, got %T", err)
	}
	if cerr.Stage != StageParse {
		t.Errorf("Stage = %q, want %q", cerr.Stage, StageParse)
	}
	if !runner.wasClosed() {
		t.Error("transport leaked on parse failure path")
	}
}

func TestCollectExecFailure(t *testing.T) {
	runner := &fakeRunner{outputs: windowsOutputs(), runErr: errors.New("session channel open failed")}
	collector := NewCollector(&fakeDialer{runner: runner}, singleCred())

	_, err := collector.Collect(context.Background(), testServer())
	var cerr *CollectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CollectionError, got %T", err)
	}
	if cerr.Stage != StageExec {
		t.Errorf("Stage = %q, want %q", cerr.Stage, StageExec)
	}
	if !runner.wasClosed() {
		t.Error("transport leaked on exec failure path")
	}
}

func TestCollectDialFailure(t *testing.T) {
	collector := NewCollector(&fakeDialer{dialErr: errors.New("connection refused")}, singleCred())

	_, err := collector.Collect(context.Background(), testServer())
	var cerr *CollectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CollectionError, got %T", err)
	}
	if cerr.Stage != StageProbe {
		t.Errorf("Stage = %q, want %q", cerr.Stage, StageProbe)
	}
}

func TestCollectHonorsContextTimeout(t *testing.T) {
	runner := &fakeRunner{outputs: windowsOutputs(), delay: 500 * time.Millisecond}
	collector := NewCollector(&fakeDialer{runner: runner}, singleCred())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := collector.Collect(ctx, testServer())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("collect took %v, should be cancelled by context", elapsed)
	}
	if !runner.wasClosed() {
		t.Error("transport leaked on timeout path")
	}
}
