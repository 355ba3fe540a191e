package binlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Decoding errors.
var (
	// ErrShortRecord is returned when the buffer ends inside a record.
	ErrShortRecord = errors.New("binlog: short record")

	// ErrBadMagic is returned when an audio record does not start with AudioMagic.
	ErrBadMagic = errors.New("binlog: bad magic")
)

// CSIRecord is one decoded CSI frame as it is logged.
type CSIRecord struct {
	// HostTimestamp is the host wall clock at decode time, in Unix seconds.
	HostTimestamp float64

	// DeviceTimestamp is the microcontroller timer value carried by the frame.
	DeviceTimestamp uint32

	RSSI    int8
	Channel uint8

	// Payload is the raw CSI buffer.
	Payload []byte
}

// PayloadLen returns the logged payload length.
// It is derived from Payload so the two can never disagree.
func (r CSIRecord) PayloadLen() uint16 {
	return uint16(len(r.Payload))
}

// Layout selects which CSI record header is written.
type Layout int

const (
	// LayoutChannel writes host_ts | device_ts | rssi | channel | len | payload.
	LayoutChannel Layout = iota

	// LayoutNoChannel writes host_ts | device_ts | rssi | len | payload.
	LayoutNoChannel
)

// ParseLayout parses a layout name as used in configuration files.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "channel", "with-channel":
		return LayoutChannel, nil
	case "nochannel", "no-channel", "without-channel":
		return LayoutNoChannel, nil
	default:
		return 0, fmt.Errorf("unknown csi layout %q", s)
	}
}

// String returns the configuration name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutChannel:
		return "channel"
	case LayoutNoChannel:
		return "nochannel"
	default:
		return "unknown"
	}
}

// HeaderSize returns the number of bytes preceding the payload.
func (l Layout) HeaderSize() int {
	if l == LayoutNoChannel {
		return 8 + 4 + 1 + 2
	}
	return 8 + 4 + 1 + 1 + 2
}

// Descriptor returns the human-readable format string stored in session metadata.
func (l Layout) Descriptor() string {
	if l == LayoutNoChannel {
		return "HostTime(f64) + DeviceTime(u32) + RSSI(i8) + Len(u16) + Payload(N), little-endian"
	}
	return "HostTime(f64) + DeviceTime(u32) + RSSI(i8) + Channel(u8) + Len(u16) + Payload(N), little-endian"
}

// EncodedSize returns the number of bytes AppendCSI writes for r.
func (l Layout) EncodedSize(r CSIRecord) int {
	return l.HeaderSize() + len(r.Payload)
}

// AppendCSI appends the encoded record to dst and returns the extended buffer.
func AppendCSI(dst []byte, r CSIRecord, l Layout) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.HostTimestamp))
	dst = binary.LittleEndian.AppendUint32(dst, r.DeviceTimestamp)
	dst = append(dst, byte(r.RSSI))
	if l != LayoutNoChannel {
		dst = append(dst, r.Channel)
	}
	dst = binary.LittleEndian.AppendUint16(dst, r.PayloadLen())
	return append(dst, r.Payload...)
}

// DecodeCSI decodes one record from the front of b.
// It returns the record and the number of bytes consumed. The payload
// aliases b.
func DecodeCSI(b []byte, l Layout) (CSIRecord, int, error) {
	hdr := l.HeaderSize()
	if len(b) < hdr {
		return CSIRecord{}, 0, ErrShortRecord
	}
	var r CSIRecord
	r.HostTimestamp = math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
	r.DeviceTimestamp = binary.LittleEndian.Uint32(b[8:12])
	r.RSSI = int8(b[12])
	lenOff := 13
	if l != LayoutNoChannel {
		r.Channel = b[13]
		lenOff = 14
	}
	n := int(binary.LittleEndian.Uint16(b[lenOff : lenOff+2]))
	if len(b) < hdr+n {
		return CSIRecord{}, 0, ErrShortRecord
	}
	r.Payload = b[hdr : hdr+n]
	return r, hdr + n, nil
}
