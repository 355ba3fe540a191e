// Package writer persists records from a queue into a rotating log file.
package writer

import (
	"context"
	"time"

	"github.com/bft-labs/dualcap/internal/batch"
	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/log"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

// Options tunes a Writer.
type Options struct {
	// Threshold is the batch size in bytes that triggers a flush.
	Threshold int

	// FlushInterval flushes a non-empty batch that has waited this long.
	FlushInterval time.Duration

	StatsInterval time.Duration

	// Grace bounds how long the writer keeps draining after cancellation
	// when its input is never closed.
	Grace time.Duration
}

func (o *Options) defaults() {
	if o.Threshold <= 0 {
		o.Threshold = 64 << 10
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = time.Second
	}
	if o.Grace <= 0 {
		o.Grace = 2 * time.Second
	}
}

// Writer drains a queue of T into batches and writes each batch to a
// LogFile. Rotation is only checked after a flush, so every part ends on a
// record boundary.
type Writer[T any] struct {
	stream   domain.Stream
	in       <-chan T
	file     *logfile.LogFile
	batch    *batch.Buffer
	encode   func(dst []byte, rec T) []byte
	release  func(T)
	opts     Options
	reporter *stats.Reporter
	logger   log.Logger

	records uint64
	bytes   uint64
	flushes uint64
}

// New returns a writer for one stream. release, if set, is called once a
// record has been encoded and its memory may be reused.
func New[T any](stream domain.Stream, in <-chan T, file *logfile.LogFile, encode func([]byte, T) []byte, release func(T), snapshots chan<- domain.Snapshot, opts Options, logger log.Logger) *Writer[T] {
	opts.defaults()
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	source := string(stream) + "-writer"
	return &Writer[T]{
		stream:   stream,
		in:       in,
		file:     file,
		batch:    batch.NewBuffer(opts.Threshold, opts.FlushInterval),
		encode:   encode,
		release:  release,
		opts:     opts,
		reporter: stats.NewReporter(snapshots, stream, source),
		logger:   logger.With(log.Component(source)),
	}
}

// NewCSIWriter writes CSI records with the given layout.
func NewCSIWriter(in <-chan binlog.CSIRecord, file *logfile.LogFile, layout binlog.Layout, snapshots chan<- domain.Snapshot, opts Options, logger log.Logger) *Writer[binlog.CSIRecord] {
	encode := func(dst []byte, rec binlog.CSIRecord) []byte {
		return binlog.AppendCSI(dst, rec, layout)
	}
	return New(domain.StreamCSI, in, file, encode, nil, snapshots, opts, logger)
}

// NewAudioWriter writes audio chunks and hands their buffers to release.
func NewAudioWriter(in <-chan binlog.AudioRecord, file *logfile.LogFile, release func(binlog.AudioRecord), snapshots chan<- domain.Snapshot, opts Options, logger log.Logger) *Writer[binlog.AudioRecord] {
	return New(domain.StreamAudio, in, file, binlog.AppendAudio, release, snapshots, opts, logger)
}

// Run writes until the input closes, or until the grace period after
// cancellation expires. A pending batch is flushed and the file closed in
// both cases. Write failures are returned as persistence errors.
func (w *Writer[T]) Run(ctx context.Context) error {
	tick := w.opts.FlushInterval
	if w.opts.StatsInterval < tick {
		tick = w.opts.StatsInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	nextReport := time.Now().Add(w.opts.StatsInterval)
	done := ctx.Done()
	var graceC <-chan time.Time

	for {
		select {
		case rec, ok := <-w.in:
			if !ok {
				return w.finish()
			}
			w.add(rec)
			if w.batch.ShouldFlush() {
				if err := w.flush(); err != nil {
					return w.fail(err)
				}
			}
		case now := <-ticker.C:
			if w.batch.ShouldFlush() {
				if err := w.flush(); err != nil {
					return w.fail(err)
				}
			}
			if !now.Before(nextReport) {
				w.report(nil)
				nextReport = now.Add(w.opts.StatsInterval)
			}
		case <-done:
			done = nil
			t := time.NewTimer(w.opts.Grace)
			defer t.Stop()
			graceC = t.C
		case <-graceC:
			w.logger.Warn("input still open after shutdown grace, closing")
			return w.finish()
		}
	}
}

func (w *Writer[T]) add(rec T) {
	before := w.batch.Len()
	w.batch.Append(func(dst []byte) []byte { return w.encode(dst, rec) })
	w.records++
	w.bytes += uint64(w.batch.Len() - before)
	if w.release != nil {
		w.release(rec)
	}
}

func (w *Writer[T]) flush() error {
	if !w.batch.HasPending() {
		return nil
	}
	if _, err := w.file.Write(w.batch.Bytes()); err != nil {
		return err
	}
	w.batch.Reset()
	w.flushes++

	rotated, err := w.file.MaybeRotate()
	if err != nil {
		return err
	}
	if rotated {
		w.logger.Info("rotated log file", log.Int("part", w.file.Index()), log.String("path", w.file.Path()))
	}
	return nil
}

func (w *Writer[T]) finish() error {
	err := w.flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return w.fail(err)
	}
	w.report(nil)
	w.logger.Debug("writer stopped",
		log.Uint64("records", w.records),
		log.Uint64("bytes", w.bytes),
		log.Uint64("flushes", w.flushes),
	)
	return nil
}

func (w *Writer[T]) fail(err error) error {
	perr := domain.PersistenceError(string(w.stream), err)
	if pending := w.batch.Len(); pending > 0 {
		w.logger.Error("unwritten batch lost", log.Int("bytes", pending), log.Err(err))
	}
	if cerr := w.file.Close(); cerr != nil {
		w.logger.Warn("close log file", log.Err(cerr))
	}
	w.report(perr)
	return perr
}

func (w *Writer[T]) report(err error) {
	w.reporter.Report(domain.Snapshot{
		Writer:    true,
		Records:   w.records,
		Bytes:     w.bytes,
		FileIndex: w.file.Index(),
		FileSize:  w.file.Size(),
		Err:       err,
	})
}
