// Session orchestration : one provisioning attempt runs a best effort
// transmitter in the background and the ack listener on the foreground path.
package session

import (
	"log/slog"
	"sync"

	esptouch "github.com/kthomsen/goesptouch"
	"github.com/kthomsen/goesptouch/pkg/codec"
	"github.com/kthomsen/goesptouch/pkg/listen"
	"github.com/kthomsen/goesptouch/pkg/transmit"
)

// Outcome of a completed session. TimedOut is set when no device reported
// at all, a partial collection below the expected count is not flagged.
// Devices holds whatever was collected either way.
type Outcome struct {
	Devices  []esptouch.DeviceInfo
	TimedOut bool
}

// A Session consumes one validated request. Both sockets live exactly as
// long as the session.
type Session struct {
	logger *slog.Logger
	req    *esptouch.Request
}

func NewSession(req *esptouch.Request, logger *slog.Logger) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{logger: logger, req: req}, nil
}

// Run transmits the credentials and collects device acks until the listener
// terminates. The transmitter is abandoned at that point : it finishes the
// datagram in flight and its socket is closed. Fatal socket or encoding
// errors are returned, an empty result on timeout is not an error.
func (s *Session) Run() (Outcome, error) {
	req := s.req
	codes, err := codec.PrepareCodes(req.Ssid, req.Password, req.Bssid, req.Data())
	if err != nil {
		return Outcome{}, err
	}

	listener := listen.NewListener(req.Expected, req.Timeout, s.logger)
	if err := listener.Bind(); err != nil {
		return Outcome{}, err
	}
	defer listener.Close()

	transmitter := transmit.NewTransmitter(codes, req.Repeat, req.Broadcast, s.logger)
	if err := transmitter.Connect(); err != nil {
		return Outcome{}, err
	}
	defer transmitter.Close()

	s.logger.Info("provisioning started",
		"ssid", string(req.Ssid),
		"broadcast", req.Broadcast,
		"repeat", req.Repeat,
		"codes", len(codes),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		transmitter.Run()
	}()

	devices, err := listener.Collect()
	transmitter.Stop()
	wg.Wait()
	if err != nil {
		return Outcome{}, err
	}

	timedOut := len(devices) == 0
	s.logger.Info("provisioning finished", "devices", len(devices), "timedOut", timedOut)
	return Outcome{Devices: devices, TimedOut: timedOut}, nil
}
