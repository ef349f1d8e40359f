package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// busyRetryMax bounds retries of transactions that hit SQLITE_BUSY.
const busyRetryMax = 5

// busyRetryBase is the first backoff delay; it doubles per attempt.
const busyRetryBase = 50 * time.Millisecond

// IsBusy reports whether err is a transient lock contention error that is
// worth retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked") ||
		strings.Contains(msg, "busy")
}

// FatalError marks a persistent store failure. Load processes abort on it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("store: fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// WriteTx runs fn inside a write transaction on the single writer
// connection. Transient lock errors are retried with exponential backoff
// up to busyRetryMax attempts and become FatalError once exhausted; other
// errors pass through for the caller to classify. Both connections use the
// same busy_timeout; the writer gets no priority over readers.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *Tx) error) error {
	delay := busyRetryBase
	for attempt := 0; ; attempt++ {
		err := s.writeTxOnce(ctx, fn)
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt >= busyRetryMax {
			return &FatalError{Err: fmt.Errorf("busy after %d retries: %w", attempt, err)}
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("store busy, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (s *Store) writeTxOnce(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
