package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

const (
	readChunkSize = 4096

	DefaultExchangeTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 8 << 20
)

// ExchangeOptions bounds a single request/response exchange.
//
// IdleTimeout is re-armed before every read and write. TotalTimeout is a
// hard deadline for the whole exchange so a peer trickling bytes cannot
// hold the monitor indefinitely.
type ExchangeOptions struct {
	IdleTimeout  time.Duration
	TotalTimeout time.Duration
	MaxBytes     int64
}

// DefaultExchangeOptions returns the default exchange bounds
func DefaultExchangeOptions() ExchangeOptions {
	return ExchangeOptions{
		IdleTimeout:  DefaultConnectTimeout,
		TotalTimeout: DefaultExchangeTimeout,
		MaxBytes:     DefaultMaxBodyBytes,
	}
}

// BuildRequest returns the HTTP/1.0 request bytes for host and path
func BuildRequest(host, path string) []byte {
	return []byte("GET " + path + " HTTP/1.0\r\nHost: " + host + "\r\n\r\n")
}

// Exchange writes one GET request and reads the response until the peer
// closes the connection. The caller owns conn and must close it.
func Exchange(ctx context.Context, conn net.Conn, host, path string, opts ExchangeOptions) (string, error) {
	var deadline time.Time
	if opts.TotalTimeout > 0 {
		deadline = time.Now().Add(opts.TotalTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	// Unblock pending I/O when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	req := BuildRequest(host, path)
	conn.SetWriteDeadline(nextDeadline(opts.IdleTimeout, deadline))
	n, err := conn.Write(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", exchangeError("write request", host, err)
	}
	if n != len(req) {
		return "", exchangeError("write request", host, io.ErrShortWrite)
	}

	response := make([]byte, 0, readChunkSize)
	buf := make([]byte, readChunkSize)
	for {
		// Re-arming the deadline would undo a cancellation that landed
		// between reads
		if err := ctx.Err(); err != nil {
			return "", exchangeError("read response", host, err)
		}
		conn.SetReadDeadline(nextDeadline(opts.IdleTimeout, deadline))
		n, err := conn.Read(buf)
		response = append(response, buf[:n]...)

		if opts.MaxBytes > 0 && int64(len(response)) > opts.MaxBytes {
			return "", exchangeError("read response", host,
				fmt.Errorf("response exceeds %d bytes", opts.MaxBytes))
		}

		if err != nil {
			// A TLS peer closing without close_notify surfaces as
			// ErrUnexpectedEOF; HTTP/1.0 framing treats it as the end.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return "", exchangeError("read response", host, err)
		}
	}

	if len(response) == 0 {
		return "", exchangeError("read response", host, types.ErrEmptyResponse)
	}
	if !utf8.Valid(response) {
		return "", exchangeError("decode response", host, errors.New("response is not valid UTF-8"))
	}

	return string(response), nil
}

func nextDeadline(idle time.Duration, total time.Time) time.Time {
	if idle <= 0 {
		return total
	}
	next := time.Now().Add(idle)
	if !total.IsZero() && total.Before(next) {
		return total
	}
	return next
}

func exchangeError(op, host string, err error) error {
	return types.NewVisitError(types.KindExchange, op, host, err)
}
