package transport

import (
	"context"
	"net"
	"time"
)

// segmentingConn splits every Write into chunks of at most size bytes,
// pausing delay between chunks, so each packet reaches the target as
// several TCP segments.
type segmentingConn struct {
	net.Conn
	size  int
	delay time.Duration
}

func (c *segmentingConn) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		end := min(written+c.size, len(b))
		n, err := c.Conn.Write(b[written:end])
		written += n
		if err != nil {
			return written, err
		}
		if end < len(b) && c.delay > 0 {
			time.Sleep(c.delay)
		}
	}
	return written, nil
}

type segmentingDialer struct {
	Dialer
	size  int
	delay time.Duration
}

func (d *segmentingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &segmentingConn{Conn: conn, size: d.size, delay: d.delay}, nil
}

// SegmentingMiddleware splits packet writes into size-byte chunks. A size
// below 1 leaves connections untouched.
func SegmentingMiddleware(size int, delay time.Duration) Middleware {
	return func(base Dialer) Dialer {
		if size < 1 {
			return base
		}
		return &segmentingDialer{Dialer: base, size: size, delay: delay}
	}
}
