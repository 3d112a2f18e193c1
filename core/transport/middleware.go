package transport

import (
	"context"
	"net"
	"time"

	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/gocircum/statefuzz/pkg/securerandom"
	"golang.org/x/time/rate"
)

// loggingDialer logs dial attempts at debug level.
type loggingDialer struct {
	Dialer
	logger logging.Logger
}

func (d *loggingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	start := time.Now()
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		d.logger.Debug("dial failed", "network", network, "address", address, "error", err)
		return nil, err
	}
	d.logger.Debug("dialed target", "address", address, "elapsed", time.Since(start))
	return conn, nil
}

// LoggingMiddleware logs every dial through logger.
func LoggingMiddleware(logger logging.Logger) Middleware {
	logger = logging.OrGlobal(logger).With("component", "transport")
	return func(base Dialer) Dialer {
		return &loggingDialer{Dialer: base, logger: logger}
	}
}

// retryDialer retries failed dial attempts.
type retryDialer struct {
	Dialer
	attempts int
	delay    time.Duration
}

func (d *retryDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		conn, err := d.Dialer.DialContext(ctx, network, address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i == d.attempts-1 {
			break
		}

		wait, err := securerandom.Duration(d.delay, d.delay+d.delay/2)
		if err != nil {
			wait = d.delay
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// RetryMiddleware retries failed dials up to attempts times in total,
// waiting between delay and 1.5*delay before each retry.
func RetryMiddleware(attempts int, delay time.Duration) Middleware {
	if attempts < 1 {
		attempts = 1
	}
	return func(base Dialer) Dialer {
		return &retryDialer{Dialer: base, attempts: attempts, delay: delay}
	}
}

// throttlingDialer paces new connections. Targets that fork per connection
// need time between sessions to settle.
type throttlingDialer struct {
	Dialer
	limiter *rate.Limiter
}

func (d *throttlingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.Dialer.DialContext(ctx, network, address)
}

// ThrottlingMiddleware limits dials to r per second with burst b. The
// limiter is shared by every dialer the middleware wraps.
func ThrottlingMiddleware(r rate.Limit, b int) Middleware {
	limiter := rate.NewLimiter(r, b)
	return func(base Dialer) Dialer {
		return &throttlingDialer{Dialer: base, limiter: limiter}
	}
}
