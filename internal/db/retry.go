package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"
)

// ErrUnavailable is surfaced once a transient storage failure has exhausted
// its retries. Nothing else in the error taxonomy is ever retried.
var ErrUnavailable = errors.New("storage unavailable")

const (
	retryAttempts = 3
	retryBase     = 100 * time.Millisecond
)

// Retry re-runs fn on transient connection errors with linear backoff.
// Business errors pass through untouched on the first failure.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < retryAttempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		select {
		case <-time.After(retryBase * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(ErrUnavailable, err)
}

func IsTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset")
}
