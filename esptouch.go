// This package is a pure golang implementation of the ESPTouch (SmartConfig v0)
// provisioning protocol. Credentials are carried in the *lengths* of UDP
// datagrams sent to broadcast or multicast addresses, so that an unconfigured
// device sniffing in promiscuous mode can recover them without joining any
// network.
package esptouch

// UDP ports used by the protocol
const (
	TargetPort = 7001  // devices listen for length-coded datagrams here
	ListenPort = 18266 // provisioned devices send their ack datagrams here
)

// Destination addresses. Multicast targets rotate over the first four
// addresses of the 234.x.x.x block, broadcast always uses the limited
// broadcast address.
const (
	BroadcastAddr        = "255.255.255.255"
	MulticastAddrPattern = "234.%d.%d.%d"
)

// Datagram length bands. Guide codes occupy their own band above the data
// bands so a receiver can distinguish the preamble from payload at any point
// of the stream.
const (
	GuideLenMin  = 512
	GuideLenMax  = 515
	NibbleLenMin = 40  // L1/L3 lower bound (+40 bias)
	NibbleLenMax = 295 // L1/L3 upper bound
	SeqLenMin    = 296 // L2 lower bound, 296 + seq
	SeqLenMax    = 423 // L2 upper bound (seq = 127)
)

// Input limits
const (
	MaxSsidLen     = 32
	MaxPasswordLen = 64
	BssidLen       = 6
	// The per-byte sequence counter is 7 bit, header + data + bssid
	// positions must all fit below it
	MaxSequence = 127
)

// Minimum length of a valid ack datagram : type byte + 6 byte MAC + 4 byte IP
const MinAckLen = 11
