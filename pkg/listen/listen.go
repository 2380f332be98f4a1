// Collection of ack datagrams from provisioned devices. A device that has
// joined the network reports its MAC and freshly acquired IPv4 address to a
// fixed UDP port, possibly several times.
package listen

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	esptouch "github.com/kthomsen/goesptouch"
)

const readBufferSize = 4096

// A Listener binds the ack port for the duration of one session, dedupes
// incoming datagrams on their raw bytes and decodes device records in
// arrival order.
type Listener struct {
	logger   *slog.Logger
	conn     net.PacketConn
	expected int
	timeout  time.Duration
	port     int
}

func NewListener(expected int, timeout time.Duration, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		logger:   logger.With("service", "listener"),
		expected: expected,
		timeout:  timeout,
		port:     esptouch.ListenPort,
	}
}

// Bind claims the ack port. A second session on the same host fails here.
func (l *Listener) Bind() error {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("listen socket : %w", err)
	}
	l.conn = conn
	return nil
}

// Collect receives ack datagrams until the receive timeout elapses or, with
// a positive expected count, until enough devices reported. Reaching the
// timeout is not an error, whatever was collected is returned.
// Bind must have been called first.
func (l *Listener) Collect() ([]esptouch.DeviceInfo, error) {
	results := make([]esptouch.DeviceInfo, 0)
	seen := make(map[string]struct{})
	buffer := make([]byte, readBufferSize)

	for {
		_ = l.conn.SetReadDeadline(time.Now().Add(l.timeout))
		n, _, err := l.conn.ReadFrom(buffer)
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return results, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return results, nil
		}
		if err != nil {
			return results, fmt.Errorf("receive : %w", err)
		}
		if n == 0 {
			continue
		}

		// Natural retransmissions from the device carry identical bytes
		key := string(buffer[:n])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		device, ok := DecodeAck(buffer[:n])
		if ok {
			l.logger.Info("device reported", "mac", device.Mac, "ip", device.IP)
			results = append(results, device)
		}
		if l.expected > 0 && len(results) >= l.expected {
			return results, nil
		}
	}
}

// Close releases the ack port
func (l *Listener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// DecodeAck extracts the device MAC (bytes 1..6, lowercase hex) and IPv4
// address (trailing 4 bytes, dotted quad) from an ack datagram. Byte 0 and
// the middle region are opaque and ignored. Datagrams shorter than the
// minimum are rejected.
func DecodeAck(data []byte) (esptouch.DeviceInfo, bool) {
	if len(data) < esptouch.MinAckLen {
		return esptouch.DeviceInfo{}, false
	}
	return esptouch.DeviceInfo{
		Mac: hex.EncodeToString(data[1:7]),
		IP:  net.IP(data[len(data)-4:]).String(),
	}, true
}
