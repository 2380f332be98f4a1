package esptouch

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"
)

// A Request holds everything needed for one provisioning session.
// It is immutable once validated, the session layer never writes to it.
type Request struct {
	Ssid     []byte
	Password []byte
	Bssid    []byte // 0 or 6 bytes
	ServerIP net.IP // 4 byte form
	// Number of guide + datum burst repetitions
	Repeat int
	// Use the limited broadcast address instead of multicast rotation
	Broadcast bool
	// Number of acks to collect before returning early, 0 collects
	// until the timeout
	Expected int
	// Overall receive timeout for the ack listener
	Timeout time.Duration
}

// Create a validated Request from user supplied strings.
// bssid may be empty, a missing password is treated as empty.
func NewRequest(ssid, password, bssid, serverIP string, expected int, timeout time.Duration, repeat int, broadcast bool) (*Request, error) {
	bssidBytes, err := ParseBssid(bssid)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(serverIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w : %q", ErrServerIP, serverIP)
	}
	req := &Request{
		Ssid:      []byte(ssid),
		Password:  []byte(password),
		Bssid:     bssidBytes,
		ServerIP:  ip.To4(),
		Repeat:    repeat,
		Broadcast: broadcast,
		Expected:  expected,
		Timeout:   timeout,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks all protocol level input constraints, including the 7 bit
// sequence ceiling, so that oversized inputs fail before any socket is opened.
func (req *Request) Validate() error {
	if len(req.Ssid) == 0 || len(req.Ssid) > MaxSsidLen {
		return ErrSsidLength
	}
	if len(req.Password) > MaxPasswordLen {
		return ErrPasswordLength
	}
	if len(req.Bssid) != 0 && len(req.Bssid) != BssidLen {
		return ErrBssidFormat
	}
	if req.ServerIP.To4() == nil {
		return ErrServerIP
	}
	if req.Repeat <= 0 {
		return ErrRepeatCount
	}
	if req.Expected < 0 {
		return ErrExpectedCount
	}
	if req.Timeout < 0 {
		return ErrTimeout
	}
	// Header occupies sequences 0..4, data continues from 5 and the
	// interleaved bssid bytes get their own sequences after the data
	if 5+len(req.Data())+len(req.Bssid)-1 > MaxSequence {
		return ErrTooLong
	}
	return nil
}

// Data returns the datum payload : server IPv4, password and ssid
// concatenated in that order.
func (req *Request) Data() []byte {
	data := make([]byte, 0, 4+len(req.Password)+len(req.Ssid))
	data = append(data, req.ServerIP.To4()...)
	data = append(data, req.Password...)
	data = append(data, req.Ssid...)
	return data
}

// ParseBssid decodes an AP MAC given as 12 hex digits with optional ':' or
// '-' separators. An empty string means no bssid bytes in the stream.
func ParseBssid(bssid string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(bssid))
	if cleaned == "" {
		return nil, nil
	}
	if len(cleaned) != BssidLen*2 {
		return nil, fmt.Errorf("%w : %q", ErrBssidFormat, bssid)
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w : %q", ErrBssidFormat, bssid)
	}
	return decoded, nil
}
