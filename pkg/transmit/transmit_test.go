package transmit

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kthomsen/goesptouch/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentDatagram struct {
	length int
	at     time.Time
}

// Fake packet conn recording every send, used instead of a real socket
type recordingConn struct {
	mu   sync.Mutex
	sent []sentDatagram
}

func (c *recordingConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentDatagram{length: len(p), at: time.Now()})
	return len(p), nil
}

func (c *recordingConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, nil }
func (c *recordingConn) Close() error                             { return nil }
func (c *recordingConn) LocalAddr() net.Addr                      { return nil }
func (c *recordingConn) SetDeadline(t time.Time) error            { return nil }
func (c *recordingConn) SetReadDeadline(t time.Time) error        { return nil }
func (c *recordingConn) SetWriteDeadline(t time.Time) error       { return nil }

func (c *recordingConn) datagrams() []sentDatagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentDatagram{}, c.sent...)
}

func newTestTransmitter(codes []uint16, repeat int) (*Transmitter, *recordingConn) {
	tx := NewTransmitter(codes, repeat, false, nil)
	conn := &recordingConn{}
	tx.conn = conn
	tx.targets = buildTargets(false)
	tx.guideTime = 50 * time.Millisecond
	tx.datumTime = 100 * time.Millisecond
	return tx, conn
}

func TestTargetsBroadcast(t *testing.T) {
	targets := buildTargets(true)
	require.Len(t, targets, 4)
	for _, target := range targets {
		assert.Equal(t, "255.255.255.255:7001", target.String())
	}
}

func TestTargetsMulticast(t *testing.T) {
	targets := buildTargets(false)
	require.Len(t, targets, 4)
	expected := []string{"234.1.1.1:7001", "234.2.2.2:7001", "234.3.3.3:7001", "234.4.4.4:7001"}
	for i, target := range targets {
		assert.Equal(t, expected[i], target.String())
	}
}

func TestRunWholeListBoundary(t *testing.T) {
	codes, err := codec.PrepareCodes([]byte("A"), nil, nil, []byte{0, 0, 0, 0, 0x41})
	require.NoError(t, err)
	tx, conn := newTestTransmitter(codes, 1)
	tx.Run()

	var guideCount, datumCount int
	for _, d := range conn.datagrams() {
		if d.length >= 512 {
			guideCount++
		} else {
			datumCount++
		}
	}
	// Each phase ends on a whole list boundary
	assert.NotZero(t, guideCount)
	assert.NotZero(t, datumCount)
	assert.Zero(t, guideCount%4)
	assert.Zero(t, datumCount%len(codes))
}

func TestRunCadence(t *testing.T) {
	codes, err := codec.PrepareCodes([]byte("A"), nil, nil, []byte{0, 0, 0, 0, 0x41})
	require.NoError(t, err)
	tx, conn := newTestTransmitter(codes, 1)
	tx.Run()

	sent := conn.datagrams()
	require.Greater(t, len(sent), 10)
	mean := sent[len(sent)-1].at.Sub(sent[0].at) / time.Duration(len(sent)-1)
	// Average interval within +-30% of the 8 ms tick
	assert.Greater(t, mean, 5600*time.Microsecond)
	assert.Less(t, mean, 10400*time.Microsecond)
}

func TestStop(t *testing.T) {
	codes, err := codec.PrepareCodes([]byte("A"), nil, nil, []byte{0, 0, 0, 0, 0x41})
	require.NoError(t, err)
	tx, _ := newTestTransmitter(codes, 1000)

	done := make(chan struct{})
	go func() {
		tx.Run()
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	tx.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("transmitter did not stop")
	}
	// Stop is idempotent
	tx.Stop()
}
