// Package runner executes one capture job against one device end to end:
// session, prologue, commands, atomic artifact commit, and optional
// fingerprint extraction.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/inventory"
	"github.com/fleetcap/fleetcap/internal/session"
)

// maxConnectTimeout caps the dial budget regardless of the device budget.
const maxConnectTimeout = 20 * time.Second

// Job is one unit of capture work against one device.
type Job struct {
	Device            inventory.Device
	Prologue          []string
	Commands          []string
	CaptureType       capture.Type
	OutputPath        string
	PerDeviceTimeout  time.Duration
	PerCommandTimeout time.Duration
}

// Status is the job outcome.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Result reports one finished job.
type Result struct {
	Host         string
	Device       string
	Status       Status
	Elapsed      time.Duration
	BytesWritten int
	Err          error
	Fingerprint  *fingerprint.Record
}

// CredentialMissingError fails a job before any connection is attempted.
type CredentialMissingError struct {
	Host         string
	CredentialID string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("runner: %s: credential %q not available", e.Host, e.CredentialID)
}

// DeviceTimeoutError reports that the per-device budget expired.
type DeviceTimeoutError struct {
	Host    string
	Elapsed time.Duration
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("runner: %s: device timeout after %s", e.Host, e.Elapsed.Round(time.Millisecond))
}

// Notify receives per-device phase transitions. Phases for one device are
// totally ordered.
type Notify func(phase string)

// Runner executes jobs. It is stateless across jobs and safe for
// concurrent use by the scheduler's workers.
type Runner struct {
	dial            session.DialFunc
	creds           *inventory.CredentialSource
	engine          *fingerprint.Engine
	sessionOpts     session.Options
	fingerprintRoot string
}

// New creates a Runner. dial is session.Dial in production.
func New(dial session.DialFunc, creds *inventory.CredentialSource, engine *fingerprint.Engine, opts session.Options, fingerprintRoot string) *Runner {
	return &Runner{
		dial:            dial,
		creds:           creds,
		engine:          engine,
		sessionOpts:     opts,
		fingerprintRoot: fingerprintRoot,
	}
}

// Run executes one job. The session is closed on every exit path; the
// output file appears atomically or not at all.
func (r *Runner) Run(ctx context.Context, job Job, notify Notify) Result {
	if notify == nil {
		notify = func(string) {}
	}
	start := time.Now()
	res := Result{Host: job.Device.Host, Device: job.Device.NormalizedName}

	finish := func(status Status, err error) Result {
		res.Status = status
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}
	// Cancellation takes precedence over errors raised at un-crossed I/O
	// boundaries; the per-device deadline maps to DeviceTimeout.
	classify := func(devCtx context.Context, err error) Result {
		var canceled *session.CanceledError
		switch {
		case ctx.Err() != nil:
			return finish(StatusCanceled, &session.CanceledError{Host: job.Device.Host})
		case errors.Is(devCtx.Err(), context.DeadlineExceeded):
			return finish(StatusFailed, &DeviceTimeoutError{Host: job.Device.Host, Elapsed: time.Since(start)})
		case errors.As(err, &canceled):
			return finish(StatusCanceled, err)
		default:
			return finish(StatusFailed, err)
		}
	}

	notify("started")

	cred, ok := r.creds.Get(job.Device.CredentialID)
	if !ok {
		return finish(StatusFailed, &CredentialMissingError{
			Host: job.Device.Host, CredentialID: job.Device.CredentialID,
		})
	}

	devCtx, cancel := context.WithTimeout(ctx, job.PerDeviceTimeout)
	defer cancel()

	opts := r.sessionOpts
	opts.ConnectTimeout = job.PerDeviceTimeout / 4
	if opts.ConnectTimeout > maxConnectTimeout {
		opts.ConnectTimeout = maxConnectTimeout
	}

	sh, err := r.dial(devCtx, session.Target{
		Host:     job.Device.Host,
		Port:     job.Device.Port,
		User:     cred.User,
		Password: cred.Password,
		KeyFile:  cred.KeyFile,
	}, opts)
	if err != nil {
		return classify(devCtx, err)
	}
	defer sh.Close()
	notify("connected")

	prompt, err := sh.Probe(devCtx)
	if err != nil {
		return classify(devCtx, err)
	}

	if len(job.Prologue) > 0 {
		if err := sh.RunPrologue(devCtx, job.Prologue); err != nil {
			return classify(devCtx, err)
		}
	}

	out, err := sh.Execute(devCtx, job.Commands, job.PerCommandTimeout)
	if err != nil {
		return classify(devCtx, err)
	}
	notify("commands-ok")

	// Do not commit a partial capture after cancellation.
	if ctx.Err() != nil {
		return finish(StatusCanceled, &session.CanceledError{Host: job.Device.Host})
	}

	if err := capture.WriteAtomic(job.OutputPath, out); err != nil {
		return finish(StatusFailed, err)
	}
	res.BytesWritten = len(out)
	notify("written")

	if capture.Fingerprintable(job.CaptureType) && r.engine != nil {
		res.Fingerprint = r.extract(job, prompt, out)
	}

	log.Info().
		Str("host", job.Device.Host).
		Str("capture_type", string(job.CaptureType)).
		Int("bytes", res.BytesWritten).
		Dur("elapsed", time.Since(start)).
		Msg("device capture complete")
	return finish(StatusOK, nil)
}

// extract parses the capture into a fingerprint record and commits it to
// the fingerprint root. A parse miss is not a failure; the raw capture
// stays authoritative and the record carries what the session observed.
func (r *Runner) extract(job Job, prompt string, out []byte) *fingerprint.Record {
	trigger := ""
	if len(job.Commands) > 0 {
		trigger = job.Commands[len(job.Commands)-1]
	}

	rec := &fingerprint.Record{
		Host:           job.Device.Host,
		CommandOutputs: map[string]string{trigger: string(out)},
		AdditionalInfo: fingerprint.AdditionalInfo{Vendor: job.Device.VendorHint},
		CapturedAt:     time.Now().UTC(),
	}

	res, _, err := r.engine.Parse(trigger, string(out), job.Device.VendorHint)
	if err != nil {
		var nm *fingerprint.NoMatchError
		if errors.As(err, &nm) {
			log.Warn().Str("host", job.Device.Host).Str("command", trigger).Msg("no template matched capture")
		} else {
			log.Error().Err(err).Str("host", job.Device.Host).Msg("fingerprint parse failed")
		}
		rec.Hostname = job.Device.Name
	} else {
		derived := fingerprint.DeriveDevice(res, prompt)
		rec.Hostname = derived.Hostname
		rec.Model = derived.Model
		rec.Version = derived.Version
		rec.SerialNumber = joinSerials(derived.Serials)
	}
	if rec.Hostname == "" {
		rec.Hostname = job.Device.Name
	}

	if r.fingerprintRoot != "" {
		path := fingerprint.RecordPath(r.fingerprintRoot, inventory.NormalizeName(rec.Hostname))
		data, err := rec.Marshal()
		if err == nil {
			err = capture.WriteAtomic(path, data)
		}
		if err != nil {
			log.Error().Err(err).Str("host", job.Device.Host).Msg("fingerprint record not written")
		}
	}
	return rec
}

func joinSerials(serials []string) string {
	out := ""
	for i, s := range serials {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
