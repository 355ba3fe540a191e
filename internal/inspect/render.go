package inspect

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Write prints a human-readable report.
func (r Report) Write(w io.Writer) {
	md := r.Metadata
	fmt.Fprintf(w, "session %s (%s) format %s\n", md.SessionID, r.Dir, md.FormatVersion)
	fmt.Fprintf(w, "  started  %s\n", md.StartTimeUTC.Format("2006-01-02 15:04:05 MST"))
	if md.CSIEnabled {
		fmt.Fprintf(w, "  csi      port=%s layout=%s\n", md.CSIPort, md.CSILayout)
	}
	if md.AudioEnabled {
		fmt.Fprintf(w, "  audio    device=%d %q %d Hz x %d ch %s, %d samples/chunk\n",
			md.AudioDeviceIndex, md.AudioDeviceName, md.SampleRate, md.Channels, md.AudioDType, md.ChunkSamples)
	}

	for _, s := range r.Streams {
		status := "ok"
		if !s.Clean() {
			status = "CORRUPT"
		}
		fmt.Fprintf(w, "%s: %d records, %d payload bytes, %.3fs span, %d parts [%s]\n",
			strings.ToUpper(string(s.Stream)), s.Records, s.PayloadBytes, s.Span(), len(s.Parts), status)
		if s.NonMonotonic > 0 {
			fmt.Fprintf(w, "  %d records with host time going backwards\n", s.NonMonotonic)
		}
		for _, p := range s.Parts {
			line := fmt.Sprintf("  %s %d bytes %d records", filepath.Base(p.Path), p.Size, p.Records)
			if p.Err != nil {
				line += ": " + p.Err.Error()
			}
			fmt.Fprintln(w, line)
		}
	}
}

// Clean reports whether every stream decoded without errors.
func (r Report) Clean() bool {
	for _, s := range r.Streams {
		if !s.Clean() {
			return false
		}
	}
	return true
}
