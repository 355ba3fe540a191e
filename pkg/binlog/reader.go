package binlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// CSIReader reads CSI records sequentially from a log part.
type CSIReader struct {
	r      *bufio.Reader
	layout Layout
	hdr    []byte
	offset int64
}

// NewCSIReader returns a reader decoding records written with layout l.
func NewCSIReader(r io.Reader, l Layout) *CSIReader {
	return &CSIReader{
		r:      bufio.NewReaderSize(r, 64<<10),
		layout: l,
		hdr:    make([]byte, l.HeaderSize()),
	}
}

// Next returns the next record. It returns io.EOF at a clean end of input and
// io.ErrUnexpectedEOF when the input ends inside a record.
func (c *CSIReader) Next() (CSIRecord, error) {
	if _, err := io.ReadFull(c.r, c.hdr); err != nil {
		return CSIRecord{}, err
	}
	lenOff := len(c.hdr) - 2
	n := int(binary.LittleEndian.Uint16(c.hdr[lenOff:]))
	buf := make([]byte, len(c.hdr)+n)
	copy(buf, c.hdr)
	if _, err := io.ReadFull(c.r, buf[len(c.hdr):]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return CSIRecord{}, err
	}
	rec, used, err := DecodeCSI(buf, c.layout)
	if err != nil {
		return CSIRecord{}, err
	}
	c.offset += int64(used)
	return rec, nil
}

// Offset returns the number of bytes consumed by complete records.
func (c *CSIReader) Offset() int64 {
	return c.offset
}

// AudioReader reads audio records sequentially from a log part.
type AudioReader struct {
	r      *bufio.Reader
	hdr    [AudioHeaderSize]byte
	offset int64
}

// NewAudioReader returns a reader over an audio log part.
func NewAudioReader(r io.Reader) *AudioReader {
	return &AudioReader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next record. It returns io.EOF at a clean end of input,
// io.ErrUnexpectedEOF on truncation and ErrBadMagic on misalignment.
func (a *AudioReader) Next() (AudioRecord, error) {
	if _, err := io.ReadFull(a.r, a.hdr[:]); err != nil {
		return AudioRecord{}, err
	}
	if a.hdr[0] != AudioMagic[0] || a.hdr[1] != AudioMagic[1] {
		return AudioRecord{}, ErrBadMagic
	}
	n := int(binary.LittleEndian.Uint32(a.hdr[10:14]))
	buf := make([]byte, AudioHeaderSize+n)
	copy(buf, a.hdr[:])
	if _, err := io.ReadFull(a.r, buf[AudioHeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return AudioRecord{}, err
	}
	rec, used, err := DecodeAudio(buf)
	if err != nil {
		return AudioRecord{}, err
	}
	a.offset += int64(used)
	return rec, nil
}

// Offset returns the number of bytes consumed by complete records.
func (a *AudioReader) Offset() int64 {
	return a.offset
}
