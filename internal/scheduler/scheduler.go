// Package scheduler fans capture jobs out across a bounded worker pool,
// enforcing the per-batch deadline and cooperative cancellation, and
// aggregating per-device results.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/runner"
	"github.com/fleetcap/fleetcap/internal/session"
)

// Event is one progress notification. Events for a given host are totally
// ordered: scheduled, started, connected, commands-ok, written, then one
// of done/failed/canceled.
type Event struct {
	Host    string
	Phase   string
	Elapsed time.Duration
	Outcome string
}

// Observer receives progress events. It is called from worker goroutines
// and must be safe for concurrent use.
type Observer func(Event)

// JobRunner abstracts runner.Runner for tests.
type JobRunner interface {
	Run(ctx context.Context, job runner.Job, notify runner.Notify) runner.Result
}

// Options configure one batch.
type Options struct {
	Workers       int
	StopOnError   bool
	BatchDeadline time.Duration // zero means none
	Drain         time.Duration // bound on worker drain after cancel
	JournalPath   string        // optional JSONL result journal
	ProgressPath  string        // optional progress event log
}

// BatchResult aggregates one batch run.
type BatchResult struct {
	ID       string
	Total    int
	OK       int
	Failed   int
	Canceled int
	Elapsed  time.Duration
	Results  []runner.Result
}

// Scheduler owns the worker pool's lifetime. Workers share nothing but the
// job queue and the results channel.
type Scheduler struct {
	runner JobRunner
	opts   Options
}

// New creates a Scheduler.
func New(r JobRunner, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Drain <= 0 {
		opts.Drain = 5 * time.Second
	}
	return &Scheduler{runner: r, opts: opts}
}

// Run executes the job set under bounded parallelism and returns the
// aggregate. A canceled context, an expired batch deadline, or (with
// StopOnError) the first failure all cancel remaining work; in-flight and
// unstarted jobs are reported canceled. Worker drain after cancellation is
// bounded by Drain; abandoned workers only ever write to the buffered
// results channel, never to shared state.
func (s *Scheduler) Run(ctx context.Context, jobs []runner.Job, observer Observer) *BatchResult {
	start := time.Now()
	res := &BatchResult{ID: uuid.NewString(), Total: len(jobs)}
	if len(jobs) == 0 {
		return res
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.opts.BatchDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.opts.BatchDeadline)
	}
	defer cancel()

	journal, progress := s.openSinks(res.ID)
	defer journal.close()
	defer progress.close()

	emit := func(e Event) {
		progress.write(e)
		if observer != nil {
			observer(e)
		}
	}

	jobCh := make(chan runner.Job)
	resCh := make(chan runner.Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if runCtx.Err() != nil {
					r := canceledResult(job)
					emit(Event{Host: job.Device.Host, Phase: "canceled", Elapsed: time.Since(start), Outcome: "canceled"})
					journal.write(r)
					resCh <- r
					continue
				}
				host := job.Device.Host
				r := s.runner.Run(runCtx, job, func(phase string) {
					emit(Event{Host: host, Phase: phase, Elapsed: time.Since(start)})
				})
				emit(Event{Host: host, Phase: terminalPhase(r.Status), Elapsed: time.Since(start), Outcome: string(r.Status)})
				journal.write(r)
				resCh <- r
			}
		}()
	}

	// Feeder: jobs enter the queue first-come first-served, stopping as
	// soon as the batch is canceled.
	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			emit(Event{Host: job.Device.Host, Phase: "scheduled", Elapsed: time.Since(start)})
			select {
			case <-runCtx.Done():
				return
			case jobCh <- job:
			}
		}
	}()

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	collected := 0
	ctxDone := runCtx.Done()
	var drainExpired <-chan time.Time

collect:
	for collected < res.Total {
		select {
		case r := <-resCh:
			collected++
			s.tally(res, r)
			if s.opts.StopOnError && r.Status == runner.StatusFailed {
				cancel()
			}

		case <-ctxDone:
			// Bounded drain: wait for workers to unwind their in-flight
			// jobs, then abandon them.
			ctxDone = nil
			drainExpired = time.After(s.opts.Drain)

		case <-drainExpired:
			log.Warn().Int("outstanding", res.Total-collected).Msg("worker drain expired, abandoning")
			break collect

		case <-workersDone:
			// Workers exited (queue closed after cancel); sweep whatever
			// results they buffered.
			for {
				select {
				case r := <-resCh:
					collected++
					s.tally(res, r)
					continue
				default:
				}
				break
			}
			break collect
		}
	}

	// Jobs that never produced a result were canceled before starting.
	res.Canceled += res.Total - collected
	res.Elapsed = time.Since(start)

	log.Info().
		Str("batch_id", res.ID).
		Int("total", res.Total).Int("ok", res.OK).
		Int("failed", res.Failed).Int("canceled", res.Canceled).
		Dur("elapsed", res.Elapsed).
		Msg("batch complete")
	return res
}

func (s *Scheduler) tally(res *BatchResult, r runner.Result) {
	res.Results = append(res.Results, r)
	switch r.Status {
	case runner.StatusOK:
		res.OK++
	case runner.StatusFailed:
		res.Failed++
	default:
		res.Canceled++
	}
}

// terminalPhase maps a result status to its closing progress phase.
func terminalPhase(status runner.Status) string {
	if status == runner.StatusOK {
		return "done"
	}
	return string(status)
}

func canceledResult(job runner.Job) runner.Result {
	return runner.Result{
		Host:   job.Device.Host,
		Device: job.Device.NormalizedName,
		Status: runner.StatusCanceled,
		Err:    &session.CanceledError{Host: job.Device.Host},
	}
}

// FailedJobs rebuilds a job queue from the failed subset of a prior batch,
// for caller-driven retry.
func FailedJobs(jobs []runner.Job, prior *BatchResult) []runner.Job {
	failed := make(map[string]struct{})
	for _, r := range prior.Results {
		if r.Status == runner.StatusFailed {
			failed[r.Device] = struct{}{}
		}
	}
	var out []runner.Job
	for _, j := range jobs {
		if _, ok := failed[j.Device.NormalizedName]; ok {
			out = append(out, j)
		}
	}
	return out
}
