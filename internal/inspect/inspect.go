// Package inspect verifies a recorded session: every log part must decode
// on record boundaries, and the parts must be contiguous from 000.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"golang.org/x/exp/mmap"

	"github.com/bft-labs/dualcap/internal/adapters/fs"
	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

// PartReport describes one log part.
type PartReport struct {
	Path    string
	Size    int64
	Records uint64

	// Err is the first decode failure. Bytes after it are not examined.
	Err error
}

// StreamReport aggregates the parts of one stream.
type StreamReport struct {
	Stream       domain.Stream
	Parts        []PartReport
	Records      uint64
	PayloadBytes uint64
	FirstHost    float64
	LastHost     float64

	// NonMonotonic counts records whose host timestamp precedes the previous one.
	NonMonotonic uint64
}

// Clean reports whether every part decoded to the end.
func (s StreamReport) Clean() bool {
	for _, p := range s.Parts {
		if p.Err != nil {
			return false
		}
	}
	return true
}

// Span returns the host time covered by the stream in seconds.
func (s StreamReport) Span() float64 {
	if s.Records == 0 {
		return 0
	}
	return s.LastHost - s.FirstHost
}

// Report is the result of inspecting a session directory.
type Report struct {
	Dir      string
	Metadata domain.SessionMetadata
	Streams  []StreamReport
}

// Session inspects the session in dir. The metadata decides the CSI layout
// and which streams are expected.
func Session(ctx context.Context, dir string) (Report, error) {
	rep := Report{Dir: dir}
	md, err := fs.NewMetadataFile(dir).Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load metadata: %w", err)
	}
	rep.Metadata = md

	if md.CSIEnabled {
		layout, err := binlog.ParseLayout(md.CSILayout)
		if err != nil {
			return rep, err
		}
		s, err := inspectStream(ctx, dir, domain.StreamCSI, func(r io.Reader) recordReader {
			cr := binlog.NewCSIReader(r, layout)
			return func() (float64, int, error) {
				rec, err := cr.Next()
				return rec.HostTimestamp, len(rec.Payload), err
			}
		})
		if err != nil {
			return rep, err
		}
		rep.Streams = append(rep.Streams, s)
	}

	if md.AudioEnabled {
		s, err := inspectStream(ctx, dir, domain.StreamAudio, func(r io.Reader) recordReader {
			ar := binlog.NewAudioReader(r)
			return func() (float64, int, error) {
				rec, err := ar.Next()
				return rec.HostTimestamp, rec.PayloadBytes(), err
			}
		})
		if err != nil {
			return rep, err
		}
		rep.Streams = append(rep.Streams, s)
	}
	return rep, nil
}

// recordReader returns the host timestamp and payload size of the next
// record, or io.EOF at a clean end.
type recordReader func() (float64, int, error)

func inspectStream(ctx context.Context, dir string, stream domain.Stream, open func(io.Reader) recordReader) (StreamReport, error) {
	rep := StreamReport{Stream: stream}
	paths, err := logfile.Parts(dir, string(stream))
	if err != nil {
		return rep, err
	}

	first := true
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		part, err := inspectPart(path, open, func(host float64, payload int) {
			if first {
				rep.FirstHost = host
				first = false
			} else if host < rep.LastHost {
				rep.NonMonotonic++
			}
			rep.LastHost = host
			rep.Records++
			rep.PayloadBytes += uint64(payload)
		})
		if err != nil {
			return rep, err
		}
		rep.Parts = append(rep.Parts, part)
	}
	return rep, nil
}

func inspectPart(path string, open func(io.Reader) recordReader, visit func(float64, int)) (PartReport, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return PartReport{}, fmt.Errorf("mmap %s: %w", filepath.Base(path), err)
	}
	defer m.Close()

	part := PartReport{Path: path, Size: int64(m.Len())}
	next := open(io.NewSectionReader(m, 0, int64(m.Len())))
	for {
		host, payload, err := next()
		if errors.Is(err, io.EOF) {
			return part, nil
		}
		if err != nil {
			part.Err = fmt.Errorf("record %d: %w", part.Records, err)
			return part, nil
		}
		part.Records++
		visit(host, payload)
	}
}
