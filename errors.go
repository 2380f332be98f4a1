package esptouch

import "errors"

var (
	ErrSsidLength     = errors.New("ssid must be between 1 and 32 bytes")
	ErrPasswordLength = errors.New("password must be at most 64 bytes")
	ErrBssidFormat    = errors.New("bssid must be 12 hex digits, ':' or '-' separators allowed")
	ErrServerIP       = errors.New("server address must be an IPv4 address")
	ErrRepeatCount    = errors.New("repeat count must be positive")
	ErrExpectedCount  = errors.New("expected device count must not be negative")
	ErrTimeout        = errors.New("receive timeout must not be negative")
	ErrTooLong        = errors.New("inputs exceed the 7 bit sequence space")
	ErrSequenceRange  = errors.New("sequence header must be between 0 and 127")
)
