package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Capture is one captures_current (or captures_archive) row.
type Capture struct {
	ID          int64
	DeviceID    int64
	CaptureType string
	CapturedAt  time.Time
	ByteLength  int
	LineCount   int
	ContentHash string
	Success     bool
	FilePath    string
	Snippet     string
}

// Change is one capture_changes row.
type Change struct {
	ID           string
	DeviceID     int64
	CaptureType  string
	DetectedAt   time.Time
	PriorHash    string
	NewHash      string
	LinesAdded   int
	LinesRemoved int
	DiffPath     string
	Severity     string
}

// CurrentCapture reads the current row for (device, capture type) within
// the transaction.
func (t *Tx) CurrentCapture(deviceID int64, captureType string) (*Capture, error) {
	c := &Capture{}
	var at string
	err := t.tx.QueryRow(`
		SELECT id, device_id, capture_type, captured_at, byte_length, line_count,
		       content_hash, success, file_path, snippet
		FROM captures_current WHERE device_id = ? AND capture_type = ?`,
		deviceID, captureType,
	).Scan(&c.ID, &c.DeviceID, &c.CaptureType, &at, &c.ByteLength, &c.LineCount,
		&c.ContentHash, &c.Success, &c.FilePath, &c.Snippet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: current capture: %w", err)
	}
	c.CapturedAt, _ = time.Parse(time.RFC3339, at)
	return c, nil
}

// TouchCurrentCapture refreshes only the captured-at timestamp; used when
// an ingest carries identical content.
func (t *Tx) TouchCurrentCapture(id int64, capturedAt time.Time) error {
	_, err := t.tx.Exec(
		"UPDATE captures_current SET captured_at = ? WHERE id = ?",
		capturedAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("store: touch capture: %w", err)
	}
	return nil
}

// ArchiveCapture copies a current row into captures_archive.
func (t *Tx) ArchiveCapture(c *Capture) error {
	_, err := t.tx.Exec(`
		INSERT INTO captures_archive
			(device_id, capture_type, captured_at, byte_length, line_count,
			 content_hash, success, file_path, snippet, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.DeviceID, c.CaptureType, c.CapturedAt.UTC().Format(time.RFC3339),
		c.ByteLength, c.LineCount, c.ContentHash, boolInt(c.Success),
		c.FilePath, c.Snippet, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: archive capture: %w", err)
	}
	return nil
}

// UpsertCurrentCapture writes the current row for (device, capture type).
func (t *Tx) UpsertCurrentCapture(c *Capture) error {
	_, err := t.tx.Exec(`
		INSERT INTO captures_current
			(device_id, capture_type, captured_at, byte_length, line_count,
			 content_hash, success, file_path, snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, capture_type) DO UPDATE SET
			captured_at = excluded.captured_at,
			byte_length = excluded.byte_length,
			line_count = excluded.line_count,
			content_hash = excluded.content_hash,
			success = excluded.success,
			file_path = excluded.file_path,
			snippet = excluded.snippet`,
		c.DeviceID, c.CaptureType, c.CapturedAt.UTC().Format(time.RFC3339),
		c.ByteLength, c.LineCount, c.ContentHash, boolInt(c.Success),
		c.FilePath, c.Snippet,
	)
	if err != nil {
		return fmt.Errorf("store: upsert current capture: %w", err)
	}
	return nil
}

// InsertChange records a capture change event.
func (t *Tx) InsertChange(ch *Change) error {
	_, err := t.tx.Exec(`
		INSERT INTO capture_changes
			(id, device_id, capture_type, detected_at, prior_hash, new_hash,
			 lines_added, lines_removed, diff_path, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.DeviceID, ch.CaptureType, ch.DetectedAt.UTC().Format(time.RFC3339),
		ch.PriorHash, ch.NewHash, ch.LinesAdded, ch.LinesRemoved, ch.DiffPath, ch.Severity,
	)
	if err != nil {
		return fmt.Errorf("store: insert change: %w", err)
	}
	return nil
}

// CurrentCaptures lists a device's current rows, one per capture type.
func (s *Store) CurrentCaptures(deviceID int64) ([]Capture, error) {
	return s.queryCaptures(`
		SELECT id, device_id, capture_type, captured_at, byte_length, line_count,
		       content_hash, success, file_path, snippet
		FROM captures_current WHERE device_id = ? ORDER BY capture_type`, deviceID)
}

// ArchivedCaptures lists a device's archive rows for one capture type in
// ingest order, oldest first.
func (s *Store) ArchivedCaptures(deviceID int64, captureType string) ([]Capture, error) {
	return s.queryCaptures(`
		SELECT id, device_id, capture_type, captured_at, byte_length, line_count,
		       content_hash, success, file_path, snippet
		FROM captures_archive WHERE device_id = ? AND capture_type = ? ORDER BY id`,
		deviceID, captureType)
}

func (s *Store) queryCaptures(query string, args ...any) ([]Capture, error) {
	rows, err := s.reader.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var at string
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.CaptureType, &at, &c.ByteLength,
			&c.LineCount, &c.ContentHash, &c.Success, &c.FilePath, &c.Snippet); err != nil {
			return nil, fmt.Errorf("store: scan capture: %w", err)
		}
		c.CapturedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Changes lists change rows for a device, newest first.
func (s *Store) Changes(deviceID int64) ([]Change, error) {
	rows, err := s.reader.Query(`
		SELECT id, device_id, capture_type, detected_at, prior_hash, new_hash,
		       lines_added, lines_removed, diff_path, severity
		FROM capture_changes WHERE device_id = ? ORDER BY detected_at DESC, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var ch Change
		var at string
		if err := rows.Scan(&ch.ID, &ch.DeviceID, &ch.CaptureType, &at, &ch.PriorHash,
			&ch.NewHash, &ch.LinesAdded, &ch.LinesRemoved, &ch.DiffPath, &ch.Severity); err != nil {
			return nil, fmt.Errorf("store: scan change: %w", err)
		}
		ch.DetectedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SweepArchive deletes archive rows older than retentionDays, at most
// batch rows per call. It returns the number of rows deleted.
func (s *Store) SweepArchive(retentionDays, batch int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	res, err := s.writer.Exec(`
		DELETE FROM captures_archive WHERE id IN (
			SELECT id FROM captures_archive WHERE archived_at < ? ORDER BY archived_at LIMIT ?
		)`, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("store: sweep archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep rows affected: %w", err)
	}
	return n, nil
}
