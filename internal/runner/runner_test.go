package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/inventory"
	"github.com/fleetcap/fleetcap/internal/session"
	"github.com/fleetcap/fleetcap/internal/template"
)

const versionBanner = `Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(7)E, RELEASE SOFTWARE (fc3)

abc-sw-01 uptime is 5 weeks, 3 days

Model Number                    : WS-C2960X-48TS-L
System Serial Number            : FOC1234ABCD
`

// fakeShell scripts a device session without a network.
type fakeShell struct {
	prompt     string
	output     []byte
	execDelay  time.Duration
	execErr    error
	closed     bool
	prologueOK []string
}

func (f *fakeShell) Probe(ctx context.Context) (string, error) { return f.prompt, nil }

func (f *fakeShell) RunPrologue(ctx context.Context, commands []string) error {
	f.prologueOK = append(f.prologueOK, commands...)
	return nil
}

func (f *fakeShell) Execute(ctx context.Context, commands []string, perCmd time.Duration) ([]byte, error) {
	if f.execDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, &session.CanceledError{Host: "fake"}
		case <-time.After(f.execDelay):
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.output, nil
}

func (f *fakeShell) Close() error {
	f.closed = true
	return nil
}

func dialerFor(sh *fakeShell, dialErr error) session.DialFunc {
	return func(ctx context.Context, target session.Target, opts session.Options) (session.Shell, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return sh, nil
	}
}

func testCreds(t *testing.T) *inventory.CredentialSource {
	t.Helper()
	t.Setenv("CRED_LAB_USER", "netops")
	t.Setenv("CRED_LAB_PASS", "secret")
	return inventory.LoadCredentials([]inventory.Device{{Host: "h", CredentialID: "lab"}})
}

func testJob(t *testing.T, outDir string) Job {
	t.Helper()
	return Job{
		Device: inventory.Device{
			Name: "ABC-SW-01", NormalizedName: "abc-sw-01", Host: "10.0.0.1", Port: 22,
			VendorHint: "cisco_ios", CredentialID: "lab",
		},
		Prologue:          []string{"terminal length 0"},
		Commands:          []string{"show version"},
		CaptureType:       capture.TypeVersion,
		OutputPath:        capture.PathFor(outDir, capture.TypeVersion, "abc-sw-01"),
		PerDeviceTimeout:  time.Minute,
		PerCommandTimeout: 10 * time.Second,
	}
}

func newTestRunner(t *testing.T, sh *fakeShell, dialErr error, fpRoot string) *Runner {
	t.Helper()
	engine := fingerprint.NewEngine(template.Builtin(), fingerprint.DefaultWeights())
	return New(dialerFor(sh, dialErr), testCreds(t), engine, session.Options{}, fpRoot)
}

func TestRun_OK(t *testing.T) {
	outDir := t.TempDir()
	fpRoot := t.TempDir()
	sh := &fakeShell{prompt: "abc-sw-01#", output: []byte(versionBanner)}
	r := newTestRunner(t, sh, nil, fpRoot)

	var phases []string
	job := testJob(t, outDir)
	res := r.Run(context.Background(), job, func(p string) { phases = append(phases, p) })

	if res.Status != StatusOK {
		t.Fatalf("status: %s err: %v", res.Status, res.Err)
	}
	if !sh.closed {
		t.Error("session not closed")
	}
	if res.BytesWritten == 0 {
		t.Error("no bytes written")
	}

	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		t.Fatalf("capture file: %v", err)
	}
	if string(data) != versionBanner {
		t.Error("capture content mismatch")
	}
	if _, err := os.Stat(job.OutputPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("tmp file left behind")
	}

	want := []string{"started", "connected", "commands-ok", "written"}
	if strings.Join(phases, ",") != strings.Join(want, ",") {
		t.Errorf("phases: %v", phases)
	}

	if res.Fingerprint == nil {
		t.Fatal("no fingerprint extracted")
	}
	if res.Fingerprint.Version != "15.2(7)E" || res.Fingerprint.SerialNumber != "FOC1234ABCD" {
		t.Errorf("fingerprint: %+v", res.Fingerprint)
	}
	if _, err := os.Stat(fingerprint.RecordPath(fpRoot, "abc-sw-01")); err != nil {
		t.Errorf("fingerprint record not written: %v", err)
	}
}

func TestRun_CredentialMissing(t *testing.T) {
	outDir := t.TempDir()
	sh := &fakeShell{prompt: "x#"}
	r := newTestRunner(t, sh, nil, "")

	job := testJob(t, outDir)
	job.Device.CredentialID = "nope"
	res := r.Run(context.Background(), job, nil)

	if res.Status != StatusFailed {
		t.Fatalf("status: %s", res.Status)
	}
	var cm *CredentialMissingError
	if !errors.As(res.Err, &cm) || cm.CredentialID != "nope" {
		t.Errorf("error: %v", res.Err)
	}
	if _, err := os.Stat(job.OutputPath); !os.IsNotExist(err) {
		t.Error("no file should be created")
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	outDir := t.TempDir()
	dialErr := &session.ConnectError{Host: "10.0.0.1", Kind: session.ConnectRefused}
	r := newTestRunner(t, &fakeShell{}, dialErr, "")

	res := r.Run(context.Background(), testJob(t, outDir), nil)
	if res.Status != StatusFailed {
		t.Fatalf("status: %s", res.Status)
	}
	var ce *session.ConnectError
	if !errors.As(res.Err, &ce) || ce.Kind != session.ConnectRefused {
		t.Errorf("error: %v", res.Err)
	}
}

func TestRun_Canceled_NoArtifact(t *testing.T) {
	outDir := t.TempDir()
	sh := &fakeShell{prompt: "x#", output: []byte("data"), execDelay: 5 * time.Second}
	r := newTestRunner(t, sh, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	job := testJob(t, outDir)
	res := r.Run(ctx, job, nil)
	if res.Status != StatusCanceled {
		t.Fatalf("status: %s err: %v", res.Status, res.Err)
	}
	if !sh.closed {
		t.Error("session not closed on cancel")
	}
	if _, err := os.Stat(job.OutputPath); !os.IsNotExist(err) {
		t.Error("canceled job must not commit a capture")
	}
	if _, err := os.Stat(job.OutputPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("canceled job must not leave a tmp file")
	}
}

func TestRun_DeviceTimeout(t *testing.T) {
	outDir := t.TempDir()
	sh := &fakeShell{prompt: "x#", execDelay: 2 * time.Second}
	r := newTestRunner(t, sh, nil, "")

	job := testJob(t, outDir)
	job.PerDeviceTimeout = 100 * time.Millisecond
	res := r.Run(context.Background(), job, nil)

	if res.Status != StatusFailed {
		t.Fatalf("status: %s err: %v", res.Status, res.Err)
	}
	var dt *DeviceTimeoutError
	if !errors.As(res.Err, &dt) {
		t.Errorf("error: %v", res.Err)
	}
}

func TestRun_NoMatchStillOK(t *testing.T) {
	outDir := t.TempDir()
	fpRoot := t.TempDir()
	long := strings.Repeat("unparseable output line\n", 10)
	sh := &fakeShell{prompt: "weird-device#", output: []byte(long)}
	r := newTestRunner(t, sh, nil, fpRoot)

	res := r.Run(context.Background(), testJob(t, outDir), nil)
	if res.Status != StatusOK {
		t.Fatalf("no-match should not fail the job: %s %v", res.Status, res.Err)
	}
	if res.Fingerprint == nil || res.Fingerprint.Hostname != "ABC-SW-01" {
		t.Errorf("fingerprint fallback: %+v", res.Fingerprint)
	}

	// Non-fingerprintable capture types skip extraction entirely.
	job := testJob(t, outDir)
	job.CaptureType = capture.TypeConfigs
	job.OutputPath = filepath.Join(outDir, "configs", "abc-sw-01.txt")
	res = r.Run(context.Background(), job, nil)
	if res.Fingerprint != nil {
		t.Error("configs capture should not fingerprint")
	}
}
