// Package session runs a dual-stream capture session.
//
// A Controller validates the devices against the configuration, writes the
// session metadata, then supervises two independent pipelines:
//
//	serial -> csi-parser -> csi-writer -> csi_part_NNN.bin
//	audio  -> audio-writer            -> audio_part_NNN.bin
//
// Units communicate only through bounded channels. Every unit reports
// snapshots to a one-way stats queue that the controller drains on its
// stats tick to render a single status line.
//
// Shutdown is two-phase: the controller cancels the shared context, then
// waits for every unit with a bounded timeout. Sources close their output
// channels, downstream units drain what is queued, and writers flush their
// batch before closing the file. Units still running at the deadline are
// reported by name.
//
// # Usage
//
//	ctrl := session.NewController(cfg, session.Deps{
//	    Opener: serial.TarmOpener{},
//	    Lister: serial.EnumeratorLister{},
//	    Audio:  backend,
//	    Status: os.Stdout,
//	    Logger: logger,
//	})
//	res, err := ctrl.Run(ctx)
package session
