// Package binlog defines the on-disk record formats written by dualcap.
//
// Two record streams are produced by a capture session. CSI records carry the
// host decode time, the device timestamp, the signed RSSI, optionally the
// radio channel, and the raw CSI payload. Audio records carry a magic marker,
// the host capture time, the payload length in bytes and little-endian
// signed 16-bit samples.
//
// All integers are little-endian. Records are self-delimiting, so a log part
// can be decoded front to back without an index.
//
// # Usage
//
// Encode into a reusable buffer:
//
//	buf = binlog.AppendCSI(buf[:0], rec, binlog.LayoutChannel)
//	buf = binlog.AppendAudio(buf, chunk)
//
// Decode a log part:
//
//	r := binlog.NewCSIReader(f, binlog.LayoutChannel)
//	for {
//	    rec, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    // ...
//	}
//
// # Version
//
// See version.go for the format version recorded by tooling.
package binlog
