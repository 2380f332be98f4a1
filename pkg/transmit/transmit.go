// Timed delivery of the encoded length sequence as UDP datagram sizes.
// Payload content is irrelevant to the receiver, only the size of each
// datagram carries information.
package transmit

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	esptouch "github.com/kthomsen/goesptouch"
	"github.com/kthomsen/goesptouch/pkg/codec"
)

const (
	// Inter send interval. Gives the receiving side enough dwell to
	// distinguish consecutive lengths on congested channels, do not
	// lower below ~5 ms
	tickInterval = 8 * time.Millisecond

	guideDuration = 2 * time.Second
	datumDuration = 4 * time.Second

	// Largest datagram the protocol ever sends
	maxCodeLen = 551

	// Number of multicast targets in rotation
	targetCount = 4
)

// A Transmitter owns one UDP socket and emits guide and datum bursts at a
// fixed cadence against the monotonic clock. It is best effort : individual
// send failures are skipped and the cadence continues.
type Transmitter struct {
	logger    *slog.Logger
	mu        sync.Mutex
	conn      net.PacketConn
	codes     []uint16
	repeat    int
	broadcast bool
	targets   []*net.UDPAddr
	targetIdx int
	payload   [maxCodeLen]byte
	stopChan  chan struct{}
	stopOnce  sync.Once

	// Phase timing, fixed by the protocol, shortened in tests
	guideTime time.Duration
	datumTime time.Duration
	tick      time.Duration
}

func NewTransmitter(codes []uint16, repeat int, broadcast bool, logger *slog.Logger) *Transmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transmitter{
		logger:    logger.With("service", "transmitter"),
		codes:     codes,
		repeat:    repeat,
		broadcast: broadcast,
		stopChan:  make(chan struct{}),
		guideTime: guideDuration,
		datumTime: datumDuration,
		tick:      tickInterval,
	}
}

// Connect opens the transmit socket and resolves the target rotation.
// Failure here is fatal to the session.
func (t *Transmitter) Connect() error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("transmit socket : %w", err)
	}
	if t.broadcast {
		if err := enableBroadcast(conn); err != nil {
			conn.Close()
			return fmt.Errorf("enable broadcast : %w", err)
		}
	}
	t.mu.Lock()
	t.conn = conn
	t.targets = buildTargets(t.broadcast)
	t.mu.Unlock()
	return nil
}

// Targets rotate with every send. Broadcast mode always hits the limited
// broadcast address, multicast mode cycles the first four addresses of the
// 234.x.x.x block.
func buildTargets(broadcast bool) []*net.UDPAddr {
	targets := make([]*net.UDPAddr, targetCount)
	for i := range targets {
		if broadcast {
			targets[i] = &net.UDPAddr{IP: net.IPv4bcast, Port: esptouch.TargetPort}
		} else {
			n := (i % 100) + 1
			ip := net.IPv4(234, byte(n), byte(n), byte(n))
			targets[i] = &net.UDPAddr{IP: ip, Port: esptouch.TargetPort}
		}
	}
	return targets
}

func enableBroadcast(conn net.PacketConn) error {
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("expecting *net.UDPConn got : %T", conn)
	}
	raw, err := udpConn.SyscallConn()
	if err != nil {
		return err
	}
	var optErr error
	err = raw.Control(func(fd uintptr) {
		optErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}

// Run performs the full burst schedule : repeat times a 2 s guide phase
// followed by a 4 s datum phase. Blocks until done or stopped.
// Connect must have been called first.
func (t *Transmitter) Run() {
	guide := codec.GuideCode()
	for r := 0; r < t.repeat; r++ {
		if !t.phase(guide[:], t.guideTime) {
			return
		}
		if !t.phase(t.codes, t.datumTime) {
			return
		}
	}
}

// One timed phase. Loops over codes at the tick cadence until the minimum
// duration has elapsed and the cursor is back at the start of the list, so
// the receiver always sees whole list repetitions. Returns false when
// stopped.
func (t *Transmitter) phase(codes []uint16, minDuration time.Duration) bool {
	idx := 0
	start := time.Now()
	next := start
	for time.Since(start) < minDuration || idx != 0 {
		select {
		case <-t.stopChan:
			return false
		default:
		}
		if wait := time.Until(next); wait > 0 {
			time.Sleep(wait)
		}
		now := time.Now()
		t.send(codes[idx])
		idx = (idx + 1) % len(codes)
		next = now.Add(t.tick)
	}
	return true
}

// Send one zero filled datagram of the given length to the current rotation
// target. Send errors are transient : logged and skipped, the cadence is
// what matters.
func (t *Transmitter) send(length uint16) {
	target := t.targets[t.targetIdx%len(t.targets)]
	t.targetIdx++
	_, err := t.conn.WriteTo(t.payload[:length], target)
	if err != nil {
		t.logger.Debug("send skipped", "length", length, "target", target.String(), "error", err)
	}
}

// Stop requests the burst loop to exit. The datagram in flight is allowed
// to finish, nothing else is sent. Safe to call more than once.
func (t *Transmitter) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Close releases the transmit socket
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
