package csi

import "encoding/binary"

// Frame is a CSI frame as the capture device puts it on the wire.
type Frame struct {
	RSSI      int8
	Channel   uint8
	Timestamp uint32
	Payload   []byte
}

// AppendFrame encodes f in wire format with the given header size and
// appends it to dst. Padding bytes of a 12-byte header are zero.
func AppendFrame(dst []byte, f Frame, headerSize int) []byte {
	if headerSize < PackedHeaderSize {
		headerSize = PackedHeaderSize
	}
	dst = append(dst, Magic[0], Magic[1])
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(f.Payload)))
	dst = append(dst, byte(f.RSSI), f.Channel)
	dst = binary.LittleEndian.AppendUint32(dst, f.Timestamp)
	for i := PackedHeaderSize; i < headerSize; i++ {
		dst = append(dst, 0)
	}
	return append(dst, f.Payload...)
}
