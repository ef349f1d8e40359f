package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/runner"
)

// journalEntry is one JSONL line in the result journal.
type journalEntry struct {
	BatchID   string `json:"batch_id"`
	Host      string `json:"host"`
	Device    string `json:"device"`
	Status    string `json:"status"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Bytes     int    `json:"bytes"`
	Error     string `json:"error,omitempty"`
}

// sink serializes appends to one of the scheduler's two extra files (the
// result journal and the progress log). A nil sink drops writes.
type sink struct {
	mu      sync.Mutex
	f       *os.File
	batchID string
}

func (s *Scheduler) openSinks(batchID string) (journal, progress *sink) {
	return openSink(s.opts.JournalPath, batchID), openSink(s.opts.ProgressPath, batchID)
}

func openSink(path, batchID string) *sink {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("journal unavailable")
		return nil
	}
	return &sink{f: f, batchID: batchID}
}

func (s *sink) close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Close()
}

// write appends one line: a JSON entry for a runner.Result (the result
// journal) or a text line for an Event (the progress log). Other values
// are dropped.
func (s *sink) write(v any) {
	if s == nil {
		return
	}

	var line []byte
	switch val := v.(type) {
	case runner.Result:
		entry := journalEntry{
			BatchID:   s.batchID,
			Host:      val.Host,
			Device:    val.Device,
			Status:    string(val.Status),
			ElapsedMs: val.Elapsed.Milliseconds(),
			Bytes:     val.BytesWritten,
		}
		if val.Err != nil {
			entry.Error = val.Err.Error()
		}
		line, _ = json.Marshal(entry)
	case Event:
		line = []byte(fmt.Sprintf("%s %s phase=%s elapsed=%s",
			time.Now().UTC().Format(time.RFC3339), val.Host, val.Phase, val.Elapsed.Round(time.Millisecond)))
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Write(append(line, '\n')) //nolint:errcheck
}
