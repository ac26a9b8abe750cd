// Package transport is a thin synchronous adapter: one per-peer
// outbound dial with a per-operation deadline, no connection pool.
// Grounded on the teacher's internal/monitor/checker.go
// (dial-with-timeout, read-deadline, write, read, compare) and
// internal/election/bully.go's sendMessage, both generalised from a
// fixed PING/PONG or ELECTION/OK pair into an arbitrary line payload.
package transport

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// ReadBufferSize is the bounded buffer used on every read.
const ReadBufferSize = 1024

// Transport dials peers with a fixed connect timeout. It holds no
// connections open between calls; the algorithm's message rate is low
// enough that per-call connection setup is acceptable.
type Transport struct {
	DialTimeout time.Duration
}

// New builds a Transport with the given per-operation dial timeout.
func New(dialTimeout time.Duration) Transport {
	return Transport{DialTimeout: dialTimeout}
}

// Request opens a connection to addr, writes message, then waits up to
// readTimeout for a single reply. Any failure along the way (connect,
// write, read timeout, empty read) is reported as an error; the
// election engine treats such errors as "no answer" and continues
// rather than aborting.
func (t Transport) Request(addr, message string, readTimeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, t.DialTimeout)
	if err != nil {
		return "", fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(message)); err != nil {
		return "", fmt.Errorf("transport: write to %s: %w", addr, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return "", fmt.Errorf("transport: set read deadline for %s: %w", addr, err)
	}

	buf := make([]byte, ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("transport: read from %s: %w", addr, err)
	}
	if n == 0 {
		return "", fmt.Errorf("transport: empty reply from %s", addr)
	}

	return string(bytes.TrimSpace(buf[:n])), nil
}

// Notify opens a connection to addr and writes message without waiting
// for a reply: fire-and-forget, used by the heartbeat fan-out and by
// the election engine's winning broadcast.
func (t Transport) Notify(addr, message string) error {
	conn, err := net.DialTimeout("tcp", addr, t.DialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(message)); err != nil {
		return fmt.Errorf("transport: write to %s: %w", addr, err)
	}
	return nil
}
