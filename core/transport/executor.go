package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/interfaces"
	"github.com/gocircum/statefuzz/pkg/logging"
)

// ExecutorConfig configures replays.
type ExecutorConfig struct {
	Address string
	// ReadTimeout bounds the wait for each reply. A reply that does not
	// arrive in time is recorded as observer.SilenceToken.
	ReadTimeout time.Duration
	// ReadBanner consumes the greeting some servers send on connect.
	ReadBanner bool
	// MaxReplyBytes bounds how much of each reply is kept.
	MaxReplyBytes int
}

// Executor replays each sequence over a fresh connection and records the
// reply to every packet as its state signal.
type Executor struct {
	dialer Dialer
	cfg    ExecutorConfig
	logger logging.Logger
}

var _ interfaces.Executor = (*Executor)(nil)

// NewExecutor creates an Executor.
func NewExecutor(dialer Dialer, cfg ExecutorConfig, logger logging.Logger) *Executor {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.MaxReplyBytes <= 0 {
		cfg.MaxReplyBytes = 4096
	}
	return &Executor{
		dialer: dialer,
		cfg:    cfg,
		logger: logging.OrGlobal(logger).With("component", "executor", "target", cfg.Address),
	}
}

// Execute implements interfaces.Executor.
func (e *Executor) Execute(ctx context.Context, seq packet.Sequence, rec interfaces.StateRecorder) error {
	conn, err := e.dialer.DialContext(ctx, "tcp", e.cfg.Address)
	if err != nil {
		rec.Record(nil, false)
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, e.cfg.MaxReplyBytes)
	if e.cfg.ReadBanner {
		if _, err := e.readReply(conn, buf); err != nil && !isTimeout(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Debug("target closed before banner", "error", err)
			rec.Record(nil, false)
			return nil
		}
	}

	for i := 0; i < seq.Len(); i++ {
		if err := conn.SetWriteDeadline(time.Now().Add(e.cfg.ReadTimeout)); err != nil {
			return err
		}
		if _, err := conn.Write(seq.At(i).Bytes()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Debug("write failed, target gone", "index", i, "error", err)
			rec.Record(nil, false)
			return nil
		}

		n, err := e.readReply(conn, buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var (
			sig   observer.Signal
			alive = true
		)
		switch {
		case n > 0:
			sig = observer.BytesSignal(append([]byte(nil), buf[:n]...))
		case err == nil || isTimeout(err):
			sig = observer.SilenceToken
		default:
			alive = false
		}
		if _, more := rec.Record(sig, alive); !more {
			return nil
		}
	}
	return nil
}

// readReply reads what the target sends in response to one packet: the
// first read waits up to ReadTimeout, follow-up reads pick up the rest of a
// reply that spans several segments.
func (e *Executor) readReply(conn net.Conn, buf []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(e.cfg.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	if err != nil {
		return n, err
	}
	settle := e.cfg.ReadTimeout / 10
	for n < len(buf) {
		if err := conn.SetReadDeadline(time.Now().Add(settle)); err != nil {
			return n, err
		}
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			if isTimeout(err) || errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
