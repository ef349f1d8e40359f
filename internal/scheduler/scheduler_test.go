package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetcap/fleetcap/internal/inventory"
	"github.com/fleetcap/fleetcap/internal/runner"
)

// fakeRunner scripts per-device outcomes and tracks concurrency.
type fakeRunner struct {
	mu          sync.Mutex
	delay       time.Duration
	failHosts   map[string]bool
	inFlight    int32
	maxInFlight int32
	started     []string
}

func (f *fakeRunner) Run(ctx context.Context, job runner.Job, notify runner.Notify) runner.Result {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}

	f.mu.Lock()
	f.started = append(f.started, job.Device.Host)
	f.mu.Unlock()

	if notify != nil {
		notify("started")
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return runner.Result{Host: job.Device.Host, Device: job.Device.NormalizedName, Status: runner.StatusCanceled}
		case <-time.After(f.delay):
		}
	}

	if f.failHosts[job.Device.Host] {
		return runner.Result{
			Host: job.Device.Host, Device: job.Device.NormalizedName,
			Status: runner.StatusFailed, Err: errors.New("boom"),
		}
	}
	return runner.Result{Host: job.Device.Host, Device: job.Device.NormalizedName, Status: runner.StatusOK}
}

func makeJobs(n int) []runner.Job {
	jobs := make([]runner.Job, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("dev-%02d", i)
		jobs = append(jobs, runner.Job{
			Device: inventory.Device{
				Name: name, NormalizedName: name, Host: name,
			},
			PerDeviceTimeout: time.Minute,
		})
	}
	return jobs
}

func TestRun_AllOK(t *testing.T) {
	fr := &fakeRunner{}
	s := New(fr, Options{Workers: 4})

	res := s.Run(context.Background(), makeJobs(10), nil)
	if res.Total != 10 || res.OK != 10 || res.Failed != 0 || res.Canceled != 0 {
		t.Fatalf("aggregate: %+v", res)
	}
	if len(res.Results) != 10 {
		t.Errorf("results: %d", len(res.Results))
	}
	if res.ID == "" {
		t.Error("batch id missing")
	}
}

func TestRun_BoundedParallelism(t *testing.T) {
	fr := &fakeRunner{delay: 30 * time.Millisecond}
	s := New(fr, Options{Workers: 3})

	s.Run(context.Background(), makeJobs(12), nil)
	if got := atomic.LoadInt32(&fr.maxInFlight); got > 3 {
		t.Errorf("max in-flight: got %d, want <= 3", got)
	}
}

func TestRun_FailuresCounted(t *testing.T) {
	fr := &fakeRunner{failHosts: map[string]bool{"dev-03": true, "dev-07": true}}
	s := New(fr, Options{Workers: 4})

	res := s.Run(context.Background(), makeJobs(10), nil)
	if res.OK != 8 || res.Failed != 2 {
		t.Fatalf("aggregate: %+v", res)
	}
}

func TestRun_StopOnError(t *testing.T) {
	fr := &fakeRunner{delay: 20 * time.Millisecond, failHosts: map[string]bool{"dev-00": true}}
	s := New(fr, Options{Workers: 2, StopOnError: true, Drain: time.Second})

	res := s.Run(context.Background(), makeJobs(20), nil)
	if res.Failed != 1 {
		t.Fatalf("failed: %d", res.Failed)
	}
	if res.OK+res.Failed+res.Canceled != res.Total {
		t.Errorf("aggregate does not sum: %+v", res)
	}
	if res.Canceled == 0 {
		t.Error("stop-on-error should cancel remaining jobs")
	}
}

func TestRun_Cancellation(t *testing.T) {
	fr := &fakeRunner{delay: 30 * time.Second}
	s := New(fr, Options{Workers: 4, Drain: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := s.Run(ctx, makeJobs(50), nil)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("scheduler did not return within drain bound: %s", elapsed)
	}
	if res.OK != 0 {
		t.Errorf("ok results after immediate cancel: %d", res.OK)
	}
	if res.Canceled != res.Total {
		t.Errorf("canceled: got %d, want %d", res.Canceled, res.Total)
	}
}

func TestRun_BatchDeadline(t *testing.T) {
	fr := &fakeRunner{delay: 10 * time.Second}
	s := New(fr, Options{Workers: 2, BatchDeadline: 100 * time.Millisecond, Drain: time.Second})

	start := time.Now()
	res := s.Run(context.Background(), makeJobs(6), nil)
	if time.Since(start) > 3*time.Second {
		t.Fatal("deadline not enforced")
	}
	if res.Canceled != res.Total {
		t.Errorf("aggregate: %+v", res)
	}
}

func TestRun_EventOrdering(t *testing.T) {
	fr := &fakeRunner{}
	s := New(fr, Options{Workers: 1})

	var mu sync.Mutex
	events := make(map[string][]string)
	observer := func(e Event) {
		mu.Lock()
		events[e.Host] = append(events[e.Host], e.Phase)
		mu.Unlock()
	}

	s.Run(context.Background(), makeJobs(3), observer)

	for host, phases := range events {
		joined := strings.Join(phases, ",")
		if joined != "scheduled,started,done" {
			t.Errorf("%s phases: %v", host, phases)
		}
	}
}

func TestFailedJobs_Replay(t *testing.T) {
	jobs := makeJobs(5)
	prior := &BatchResult{
		Results: []runner.Result{
			{Device: "dev-00", Status: runner.StatusOK},
			{Device: "dev-01", Status: runner.StatusFailed},
			{Device: "dev-03", Status: runner.StatusFailed},
			{Device: "dev-04", Status: runner.StatusCanceled},
		},
	}
	replay := FailedJobs(jobs, prior)
	if len(replay) != 2 {
		t.Fatalf("replay: %d jobs", len(replay))
	}
	if replay[0].Device.NormalizedName != "dev-01" || replay[1].Device.NormalizedName != "dev-03" {
		t.Errorf("replay order: %v", replay)
	}
}

func TestRun_EmptyJobs(t *testing.T) {
	s := New(&fakeRunner{}, Options{Workers: 4})
	res := s.Run(context.Background(), nil, nil)
	if res.Total != 0 || len(res.Results) != 0 {
		t.Errorf("empty batch: %+v", res)
	}
}
