package binlog

import (
	"encoding/binary"
	"math"
)

// AudioMagic marks the start of every audio record.
var AudioMagic = [2]byte{0xAA, 0xAA}

// AudioHeaderSize is magic(2) + host timestamp(8) + length(4).
const AudioHeaderSize = 2 + 8 + 4

// SampleWidth is the size in bytes of one logged sample.
const SampleWidth = 2

// AudioDType names the sample encoding in session metadata.
const AudioDType = "int16"

// AudioDescriptor is the format string stored in session metadata.
const AudioDescriptor = "Magic(2)=AAAA + HostTime(f64) + Length(u32 bytes) + Samples(N x i16), little-endian"

// AudioRecord is a fixed-size block of interleaved samples and the host time
// at which it was captured.
type AudioRecord struct {
	HostTimestamp float64
	Samples       []int16
}

// PayloadBytes returns the encoded payload length.
func (r AudioRecord) PayloadBytes() int {
	return len(r.Samples) * SampleWidth
}

// EncodedSize returns the number of bytes AppendAudio writes for r.
func (r AudioRecord) EncodedSize() int {
	return AudioHeaderSize + r.PayloadBytes()
}

// AppendAudio appends the encoded record to dst and returns the extended buffer.
func AppendAudio(dst []byte, r AudioRecord) []byte {
	dst = append(dst, AudioMagic[0], AudioMagic[1])
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.HostTimestamp))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.PayloadBytes()))
	for _, s := range r.Samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// DecodeAudio decodes one record from the front of b and returns the number
// of bytes consumed. Samples are copied out of b.
func DecodeAudio(b []byte) (AudioRecord, int, error) {
	if len(b) < AudioHeaderSize {
		return AudioRecord{}, 0, ErrShortRecord
	}
	if b[0] != AudioMagic[0] || b[1] != AudioMagic[1] {
		return AudioRecord{}, 0, ErrBadMagic
	}
	ts := math.Float64frombits(binary.LittleEndian.Uint64(b[2:10]))
	n := int(binary.LittleEndian.Uint32(b[10:14]))
	if len(b) < AudioHeaderSize+n {
		return AudioRecord{}, 0, ErrShortRecord
	}
	payload := b[AudioHeaderSize : AudioHeaderSize+n]
	samples := make([]int16, n/SampleWidth)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*SampleWidth:]))
	}
	return AudioRecord{HostTimestamp: ts, Samples: samples}, AudioHeaderSize + n, nil
}
