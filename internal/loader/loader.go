// Package loader moves capture artifacts and fingerprint records from disk
// into the store under the current/archive pattern, emitting change events
// when content moves.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/change"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/store"
)

// Options configure a Loader.
type Options struct {
	Types           *capture.TypeSet
	Patterns        *change.Patterns
	Engine          *fingerprint.Engine
	MinSuccessBytes int
	ArchiveDays     int
	SweepBatch      int
	SnippetBytes    int
	// BlobRoot holds content-addressed copies of ingested captures so the
	// change detector can diff against prior content after the live
	// artifact has been overwritten.
	BlobRoot string
	// DiffRoot holds rendered diff artifacts, addressed by change id.
	DiffRoot string
}

// Loader ingests capture and fingerprint artifacts. It is the single
// writer; all its mutations go through store.WriteTx.
type Loader struct {
	store *store.Store
	opts  Options
}

// New creates a Loader over the given store.
func New(st *store.Store, opts Options) *Loader {
	return &Loader{store: st, opts: opts}
}

// DeviceUnknownError marks a capture whose device has not been
// fingerprinted yet. It is a skip, not a failure.
type DeviceUnknownError struct {
	Path string
}

func (e *DeviceUnknownError) Error() string {
	return fmt.Sprintf("loader: unknown device for %s", e.Path)
}

// CaptureResult reports one capture ingest.
type CaptureResult struct {
	Device  string
	Type    capture.Type
	Skipped bool
	Changed bool
	Change  *store.Change
}

// IngestCaptureFile ingests one capture artifact. Unknown devices are
// skipped with a warning (fingerprints are loaded first by convention);
// unknown capture types are errors.
func (l *Loader) IngestCaptureFile(ctx context.Context, path string) (*CaptureResult, error) {
	typ, device, err := capture.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !l.opts.Types.Contains(typ) {
		return nil, &capture.UnknownTypeError{Type: typ}
	}

	dev, err := l.store.GetDevice(device)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("path", path).Str("device", device).Msg("capture for unknown device, skipped")
		return &CaptureResult{Device: device, Type: typ, Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := capture.ReadArtifact(path)
	if err != nil {
		return nil, err
	}

	hash := capture.HashBytes(data)
	lines := capture.CountLines(data)
	ok, marker := capture.Assess(data, l.opts.MinSuccessBytes)
	if !ok {
		log.Debug().Str("path", path).Str("marker", marker).Msg("capture assessed as failed collection")
	}

	// Keep a content-addressed copy so a later ingest can diff against
	// this content after the live artifact is overwritten.
	if err := l.writeBlob(hash, data); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := &store.Capture{
		DeviceID:    dev.ID,
		CaptureType: string(typ),
		CapturedAt:  now,
		ByteLength:  len(data),
		LineCount:   lines,
		ContentHash: hash,
		Success:     ok,
		FilePath:    path,
		Snippet:     snippet(data, l.opts.SnippetBytes),
	}

	res := &CaptureResult{Device: device, Type: typ}
	err = l.store.WriteTx(ctx, func(tx *store.Tx) error {
		cur, err := tx.CurrentCapture(dev.ID, string(typ))
		switch {
		case errors.Is(err, store.ErrNotFound):
			return tx.UpsertCurrentCapture(row)
		case err != nil:
			return err
		}

		if cur.ContentHash == hash {
			// Identical content: refresh the timestamp only.
			return tx.TouchCurrentCapture(cur.ID, now)
		}

		// Archive rows reference the blob copy; the live path is about to
		// describe the new content.
		archived := *cur
		archived.FilePath = l.blobPath(cur.ContentHash)
		if err := tx.ArchiveCapture(&archived); err != nil {
			return err
		}
		if err := tx.UpsertCurrentCapture(row); err != nil {
			return err
		}

		ch, err := l.buildChange(dev.ID, typ, cur.ContentHash, hash, data)
		if err != nil {
			return err
		}
		if err := tx.InsertChange(ch); err != nil {
			return err
		}
		res.Changed = true
		res.Change = ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// buildChange classifies the content move and writes its diff artifact.
// A missing prior blob degrades to a moderate change with no diff, the
// same way a size overflow does.
func (l *Loader) buildChange(deviceID int64, typ capture.Type, priorHash, newHash string, newData []byte) (*store.Change, error) {
	ch := &store.Change{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		CaptureType: string(typ),
		DetectedAt:  time.Now().UTC(),
		PriorHash:   priorHash,
		NewHash:     newHash,
		Severity:    string(change.SeverityModerate),
	}

	prior, err := capture.ReadArtifact(l.blobPath(priorHash))
	if err != nil {
		if errors.Is(err, capture.ErrMissing) {
			log.Warn().Str("hash", priorHash).Msg("prior capture content missing, change degraded to moderate")
			return ch, nil
		}
		return nil, err
	}

	res := change.Classify(string(prior), string(newData), l.opts.Patterns)
	ch.LinesAdded = res.LinesAdded
	ch.LinesRemoved = res.LinesRemoved
	ch.Severity = string(res.Severity)

	diffPath, err := change.WriteDiff(l.opts.DiffRoot, ch.ID, res.Diff)
	if err != nil {
		return nil, err
	}
	ch.DiffPath = diffPath
	return ch, nil
}

// IngestCaptureDir walks <dir>/<capture_type>/*.txt and ingests every
// artifact, optionally restricted to the given types. It returns counts of
// ingested, skipped, and failed files, then runs a bounded retention sweep.
func (l *Loader) IngestCaptureDir(ctx context.Context, dir string, only []capture.Type) (ingested, skipped, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("loader: read capture dir %s: %w", dir, err)
	}

	filter := make(map[capture.Type]struct{}, len(only))
	for _, t := range only {
		filter[t] = struct{}{}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		typ := capture.Type(entry.Name())
		if len(filter) > 0 {
			if _, want := filter[typ]; !want {
				continue
			}
		}
		files, globErr := filepath.Glob(filepath.Join(dir, entry.Name(), "*.txt"))
		if globErr != nil {
			return ingested, skipped, failed, fmt.Errorf("loader: glob %s: %w", entry.Name(), globErr)
		}
		for _, f := range files {
			if ctx.Err() != nil {
				return ingested, skipped, failed, ctx.Err()
			}
			res, ingErr := l.IngestCaptureFile(ctx, f)
			switch {
			case ingErr != nil:
				failed++
				log.Error().Err(ingErr).Str("path", f).Msg("capture ingest failed")
				var fatal *store.FatalError
				if errors.As(ingErr, &fatal) {
					return ingested, skipped, failed, ingErr
				}
			case res.Skipped:
				skipped++
			default:
				ingested++
			}
		}
	}

	if _, sweepErr := l.Sweep(); sweepErr != nil {
		log.Warn().Err(sweepErr).Msg("retention sweep failed")
	}
	return ingested, skipped, failed, nil
}

// Sweep deletes archive rows past retention, bounded per invocation.
func (l *Loader) Sweep() (int64, error) {
	return l.store.SweepArchive(l.opts.ArchiveDays, l.opts.SweepBatch)
}

func (l *Loader) blobPath(hash string) string {
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(l.opts.BlobRoot, prefix, hash+".txt")
}

func (l *Loader) writeBlob(hash string, data []byte) error {
	path := l.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil // content-addressed: identical bytes already stored
	}
	return capture.WriteAtomic(path, data)
}

func snippet(data []byte, max int) string {
	if max <= 0 {
		return ""
	}
	if len(data) < max {
		max = len(data)
	}
	return string(data[:max])
}
