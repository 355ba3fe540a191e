// Package csi decodes the CSI serial stream emitted by the capture firmware.
//
// The firmware writes frames back to back over a USB serial link:
//
//	magic(FA FA) | length u16 | rssi i8 | channel u8 | timestamp u32 | payload
//
// The link is lossy: the firmware ring buffer can wrap, the host can drop
// reads, and a frame can start anywhere within a read. Parser searches for
// the magic, validates the length field and steps over the magic whenever a
// header turns out to be implausible. Line noise ending in 0xFA in front of
// a frame yields FA FA FA, which two alignments can claim; the parser keeps
// the one whose frame is followed by the next magic.
//
// # Usage
//
//	p := csi.NewParser(csi.WithMaxPayload(1024))
//	for chunk := range chunks {
//	    p.Feed(chunk)
//	    for rec, ok := p.Next(); ok; rec, ok = p.Next() {
//	        // rec is a binlog.CSIRecord stamped with the decode time
//	    }
//	}
//	p.End()
//	for rec, ok := p.Next(); ok; rec, ok = p.Next() {
//	    // frames held back at the tail of the stream
//	}
//	p.Flush() // drop a trailing partial frame
package csi
