package connector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/sony/gobreaker"
)

// TimeoutError means the source did not answer within the configured bound.
// It is retryable.
type TimeoutError struct {
	Source  string
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("connector %s: %s timed out after %s", e.Source, e.Op, e.Timeout)
	}
	return fmt.Sprintf("connector %s: %s timed out", e.Source, e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransientError is a connection-level failure worth retrying.
type TransientError struct {
	Source string
	Op     string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("connector %s: %s failed transiently: %v", e.Source, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// SourceError is any other source failure. It is not retried.
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("connector %s: %s failed: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a timeout or a transient failure.
func IsRetryable(err error) bool {
	var te *TimeoutError
	var tr *TransientError
	return errors.As(err, &te) || errors.As(err, &tr)
}

// IsTimeout reports whether err is a connector timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// classify translates a low-level error into the connector taxonomy so
// nothing driver specific leaves the package.
func classify(source, op string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	var (
		te *TimeoutError
		tr *TransientError
		se *SourceError
		ce *datasync.ConfigurationError
	)
	if errors.As(err, &te) || errors.As(err, &tr) || errors.As(err, &se) || errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Source: source, Op: op, Timeout: timeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TimeoutError{Source: source, Op: op, Timeout: timeout, Err: err}
		}
		return &TransientError{Source: source, Op: op, Err: err}
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return &TransientError{Source: source, Op: op, Err: err}
	}

	if code := sqlState(err); code != "" {
		switch {
		case code == "57014":
			// statement_timeout on the server side
			return &TimeoutError{Source: source, Op: op, Timeout: timeout, Err: err}
		case strings.HasPrefix(code, "08"), code == "57P01", code == "57P02", code == "57P03",
			code == "53300", code == "40001", code == "40P01":
			return &TransientError{Source: source, Op: op, Err: err}
		case strings.HasPrefix(code, "28"), strings.HasPrefix(code, "42"), code == "3D000", code == "3F000", code == "25006":
			return datasync.NewConfigurationError("connector "+source, op+" rejected by source", err)
		}
	}

	return &SourceError{Source: source, Op: op, Err: err}
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
