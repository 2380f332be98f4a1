package listen

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ackDatagram = []byte{0x01, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x00, 192, 168, 1, 42}

func TestDecodeAck(t *testing.T) {
	device, ok := DecodeAck(ackDatagram)
	require.True(t, ok)
	assert.Equal(t, "aabbccddeeff", device.Mac)
	assert.Equal(t, "192.168.1.42", device.IP)
}

func TestDecodeAckMinimumLength(t *testing.T) {
	// 11 bytes is the shortest valid ack : type + MAC + IP
	minimal := []byte{0x00, 1, 2, 3, 4, 5, 6, 10, 0, 0, 1}
	device, ok := DecodeAck(minimal)
	require.True(t, ok)
	assert.Equal(t, "010203040506", device.Mac)
	assert.Equal(t, "10.0.0.1", device.IP)

	_, ok = DecodeAck(minimal[:10])
	assert.False(t, ok)
}

// Start a listener on an ephemeral port and return a sender aimed at it
func newTestListener(t *testing.T, expected int, timeout time.Duration) (*Listener, net.Conn) {
	t.Helper()
	l := NewListener(expected, timeout, nil)
	l.port = 0
	require.NoError(t, l.Bind())
	t.Cleanup(func() { l.Close() })

	sender, err := net.Dial("udp4", l.conn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { sender.Close() })
	return l, sender
}

func TestCollectDedup(t *testing.T) {
	l, sender := newTestListener(t, 0, 300*time.Millisecond)
	go func() {
		for i := 0; i < 3; i++ {
			sender.Write(ackDatagram)
			time.Sleep(10 * time.Millisecond)
		}
	}()
	results, err := l.Collect()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aabbccddeeff", results[0].Mac)
}

func TestCollectEarlyExit(t *testing.T) {
	l, sender := newTestListener(t, 1, 5*time.Second)
	go func() {
		time.Sleep(50 * time.Millisecond)
		sender.Write(ackDatagram)
	}()
	start := time.Now()
	results, err := l.Collect()
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Returns as soon as the expected count is reached, not at the timeout
	assert.Less(t, time.Since(start), time.Second)
}

func TestCollectTimeout(t *testing.T) {
	l, _ := newTestListener(t, 1, 100*time.Millisecond)
	results, err := l.Collect()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCollectShortDatagrams(t *testing.T) {
	l, sender := newTestListener(t, 0, 300*time.Millisecond)
	go func() {
		sender.Write([]byte{1, 2, 3})
		time.Sleep(10 * time.Millisecond)
		sender.Write(ackDatagram)
	}()
	results, err := l.Collect()
	require.NoError(t, err)
	// Short datagrams are deduplicated but never produce a record
	require.Len(t, results, 1)
	assert.Equal(t, "192.168.1.42", results[0].IP)
}
