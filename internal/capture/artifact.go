package capture

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissing is returned when a capture artifact referenced by the store is
// no longer present on disk. Artifacts are owned by the filesystem and may
// be deleted independently of their rows.
var ErrMissing = errors.New("capture: artifact missing")

// PathFor returns the canonical artifact path for a capture:
// <root>/<capture_type>/<device-normalized-name>.txt.
func PathFor(root string, t Type, device string) string {
	return filepath.Join(root, string(t), device+".txt")
}

// ParsePath extracts the capture type and device normalized name from an
// artifact path laid out by PathFor.
func ParsePath(path string) (Type, string, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".txt") {
		return "", "", fmt.Errorf("capture: not an artifact path: %s", path)
	}
	device := strings.TrimSuffix(base, ".txt")
	dir := filepath.Base(filepath.Dir(path))
	if device == "" || dir == "" || dir == "." || dir == string(filepath.Separator) {
		return "", "", fmt.Errorf("capture: not an artifact path: %s", path)
	}
	return Type(dir), device, nil
}

// WriteAtomic commits data to path atomically: it writes to a sibling
// .tmp file, fsyncs, then renames over the final name. The rename is the
// commit point; a crash before it leaves no partial file visible at path.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create directory %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("capture: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("capture: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("capture: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("capture: rename %s: %w", path, err)
	}
	return nil
}

// ReadArtifact reads an artifact from disk, translating a missing file into
// ErrMissing so callers can distinguish it from I/O failures.
func ReadArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("capture: read %s: %w", path, err)
	}
	return data, nil
}

// HashBytes returns the hex-encoded content hash of data. The hash is a
// pure function of the committed bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CountLines counts newline-terminated lines, counting a trailing partial
// line as one.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte("\n"))
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// failureMarkers are substrings whose presence marks a capture as a failed
// collection even when the file is non-empty.
var failureMarkers = []string{
	"% invalid command",
	"% invalid input detected",
	"% incomplete command",
	"% unknown command",
	"connection refused",
	"connection timed out",
	"network error:",
}

// Assess decides whether a capture's content represents a successful
// collection: the payload must be at least minSize bytes and free of the
// known failure markers. It returns the marker that caused the failure,
// if any.
func Assess(data []byte, minSize int) (ok bool, marker string) {
	if len(bytes.TrimSpace(data)) == 0 {
		return false, "empty output"
	}
	if len(data) < minSize {
		return false, fmt.Sprintf("short output (%d bytes)", len(data))
	}
	lower := strings.ToLower(string(data))
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return false, m
		}
	}
	return true, ""
}
