// Length coding of the provisioning stream. Every logical byte is carried by
// three consecutive datagram lengths : crc/data high nibbles, sequence
// number, crc/data low nibbles.
package codec

import (
	"fmt"

	esptouch "github.com/kthomsen/goesptouch"
	"github.com/kthomsen/goesptouch/internal/crc"
)

// Number of length coded bytes in the datum header
const HeaderLen = 5

// GuideCode returns the four length preamble sent ahead of every datum burst
func GuideCode() [4]uint16 {
	return [4]uint16{515, 514, 513, 512}
}

// EncodeByte converts one data byte and its 7 bit sequence number into the
// three datagram lengths that transmit it. The +40 bias keeps the nibble
// lengths clear of guide codes and short housekeeping traffic, the middle
// length sits in its own 296..423 band so a receiver can recover the
// sequence number unambiguously.
func EncodeByte(dataByte byte, seq int) ([3]uint16, error) {
	if seq < 0 || seq > esptouch.MaxSequence {
		return [3]uint16{}, fmt.Errorf("%w : %v", esptouch.ErrSequenceRange, seq)
	}
	c := crc.CRC8(0)
	c.Single(dataByte)
	c.Single(byte(seq))

	crcHigh := uint16(c >> 4)
	crcLow := uint16(c & 0x0F)
	dataHigh := uint16(dataByte >> 4)
	dataLow := uint16(dataByte & 0x0F)

	return [3]uint16{
		(crcHigh<<4 | dataHigh) + 40,
		296 + uint16(seq),
		(crcLow<<4 | dataLow) + 40,
	}, nil
}

// DatumHeader computes the five byte header of the datum stream :
// total length, password length, ssid crc, bssid crc and the xor checksum
// over the header fields and every data byte.
func DatumHeader(ssid, password, bssid, data []byte) [HeaderLen]byte {
	totalLen := byte(HeaderLen + len(data))
	passLen := byte(len(password))
	ssidCrc := crc.Checksum(ssid)
	bssidCrc := crc.Checksum(bssid)

	totalXor := totalLen ^ passLen ^ ssidCrc ^ bssidCrc
	for _, b := range data {
		totalXor ^= b
	}
	return [HeaderLen]byte{totalLen, passLen, ssidCrc, bssidCrc, totalXor}
}

// PrepareCodes builds the complete ordered list of datagram lengths for one
// datum burst : header, then data bytes with bssid bytes interleaved every
// fourth position. The bssid bytes use their own sequence space starting
// right after the last data sequence, which lets the receiver confirm it is
// locked onto the right transmitter.
//
// The output is deterministic, 3 lengths per logical byte, and never
// reordered.
func PrepareCodes(ssid, password, bssid, data []byte) ([]uint16, error) {
	codes := make([]uint16, 0, 3*(HeaderLen+len(data)+len(bssid)))
	header := DatumHeader(ssid, password, bssid, data)

	appendByte := func(b byte, seq int) error {
		triple, err := EncodeByte(b, seq)
		if err != nil {
			return err
		}
		codes = append(codes, triple[:]...)
		return nil
	}

	seq := 0
	for _, h := range header {
		if err := appendByte(h, seq); err != nil {
			return nil, err
		}
		seq++
	}

	bssidSeq := HeaderLen + len(data)
	bssidIdx := 0
	for dataIdx, d := range data {
		if dataIdx%4 == 0 && bssidIdx < len(bssid) {
			if err := appendByte(bssid[bssidIdx], bssidSeq); err != nil {
				return nil, err
			}
			bssidSeq++
			bssidIdx++
		}
		if err := appendByte(d, seq); err != nil {
			return nil, err
		}
		seq++
	}

	// Drain bssid bytes not consumed inside the data loop
	for ; bssidIdx < len(bssid); bssidIdx++ {
		if err := appendByte(bssid[bssidIdx], bssidSeq); err != nil {
			return nil, err
		}
		bssidSeq++
	}
	return codes, nil
}
