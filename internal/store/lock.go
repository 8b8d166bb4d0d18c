package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"strconv"
	"time"
)

// ErrDatasetLocked is returned when a writer could not obtain the dataset
// lock within its retry budget. Callers treat it as contention, not data loss.
var ErrDatasetLocked = errors.New("dataset is locked by another writer")

// fileLock serializes dataset writers across processes using an O_EXCL lock
// file next to the collections. Contention is retried with jittered
// exponential backoff; locks older than staleAfter are assumed abandoned by a
// crashed writer and broken.
type fileLock struct {
	path        string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	staleAfter  time.Duration
}

func newFileLock(path string) *fileLock {
	return &fileLock{
		path:        path,
		maxAttempts: 20,
		baseDelay:   25 * time.Millisecond,
		maxDelay:    time.Second,
		staleAfter:  30 * time.Second,
	}
}

// Acquire blocks (with backoff) until the lock file is created or the retry
// budget runs out.
func (l *fileLock) Acquire(ctx context.Context) error {
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("lock wait canceled: %w", err)
		}
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		l.breakIfStale()
		if err := sleepCtx(ctx, l.backoff(attempt)); err != nil {
			return fmt.Errorf("lock wait canceled: %w", err)
		}
	}
	return ErrDatasetLocked
}

// Release removes the lock file. Missing files are tolerated so Release is
// safe to defer unconditionally.
func (l *fileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release dataset lock: %w", err)
	}
	return nil
}

func (l *fileLock) tryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create dataset lock: %w", err)
	}
	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("write dataset lock: %w", errors.Join(writeErr, closeErr))
	}
	return true, nil
}

func (l *fileLock) breakIfStale() {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > l.staleAfter {
		_ = os.Remove(l.path)
	}
}

// backoff mirrors the crawl fetch retry policy: exponential growth capped at
// maxDelay, with random jitter over half the delay.
func (l *fileLock) backoff(attempt int) time.Duration {
	delay := float64(l.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(l.maxDelay) {
		delay = float64(l.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
