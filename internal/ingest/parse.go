package ingest

import (
	"context"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/csi"
	"github.com/bft-labs/dualcap/pkg/log"
)

// ParseUnit runs a csi.Parser between the raw queue and the record queue.
type ParseUnit struct {
	parser        *csi.Parser
	in            <-chan []byte
	out           chan<- binlog.CSIRecord
	statsInterval time.Duration
	grace         time.Duration
	reporter      *stats.Reporter
	logger        log.Logger

	records uint64
	bytes   uint64
	dropped uint64
	resyncs uint64
}

// NewParseUnit returns a unit feeding parser from in. grace bounds how long
// the unit keeps draining after cancellation when in is never closed.
func NewParseUnit(parser *csi.Parser, in <-chan []byte, out chan<- binlog.CSIRecord, snapshots chan<- domain.Snapshot, statsInterval, grace time.Duration, logger log.Logger) *ParseUnit {
	if statsInterval <= 0 {
		statsInterval = time.Second
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &ParseUnit{
		parser:        parser,
		in:            in,
		out:           out,
		statsInterval: statsInterval,
		grace:         grace,
		reporter:      stats.NewReporter(snapshots, domain.StreamCSI, "csi-parser"),
		logger:        logger.With(log.Component("csi-parser")),
	}
}

// Run parses until the raw queue closes, then discards a trailing partial
// frame and closes the record queue.
func (p *ParseUnit) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.statsInterval)
	defer ticker.Stop()

	done := ctx.Done()
	var graceC <-chan time.Time

	for {
		select {
		case chunk, ok := <-p.in:
			if !ok {
				p.finish()
				return nil
			}
			p.feed(chunk)
		case <-ticker.C:
			p.report()
		case <-done:
			done = nil
			t := time.NewTimer(p.grace)
			defer t.Stop()
			graceC = t.C
		case <-graceC:
			p.logger.Warn("raw queue still open after shutdown grace")
			p.finish()
			return nil
		}
	}
}

func (p *ParseUnit) feed(chunk []byte) {
	p.parser.Feed(chunk)
	p.emit()
}

func (p *ParseUnit) emit() {
	defer p.checkResyncs()
	for rec, ok := p.parser.Next(); ok; rec, ok = p.parser.Next() {
		select {
		case p.out <- rec:
			p.records++
			p.bytes += uint64(len(rec.Payload))
		default:
			p.dropped++
			if p.dropped == 1 || p.dropped%1000 == 0 {
				p.logger.Warn("record queue full, dropping csi records", log.Uint64("dropped", p.dropped))
			}
		}
	}
}

// checkResyncs logs the first resync and then one line per thousand.
func (p *ParseUnit) checkResyncs() {
	st := p.parser.Stats()
	if st.Resyncs == p.resyncs {
		return
	}
	prev := p.resyncs
	p.resyncs = st.Resyncs
	if prev == 0 || prev/1000 != st.Resyncs/1000 {
		p.logger.Warn("csi stream resynchronized",
			log.String("severity", domain.Severity(domain.ErrFrameCorrupt)),
			log.Err(domain.ErrFrameCorrupt),
			log.Uint64("resyncs", st.Resyncs),
			log.Uint64("skipped_bytes", st.SkippedBytes),
		)
	}
}

func (p *ParseUnit) finish() {
	p.parser.End()
	p.emit()
	if n := p.parser.Flush(); n > 0 {
		p.logger.Debug("discarded trailing partial frame", log.Int("bytes", n))
	}
	close(p.out)
	p.report()

	st := p.parser.Stats()
	p.logger.Debug("csi parser stopped",
		log.Uint64("records", p.records),
		log.Uint64("resyncs", st.Resyncs),
		log.Uint64("skipped_bytes", st.SkippedBytes),
		log.Uint64("dropped", p.dropped),
	)
}

func (p *ParseUnit) report() {
	st := p.parser.Stats()
	p.reporter.Report(domain.Snapshot{
		Records:      p.records,
		Bytes:        p.bytes,
		Dropped:      p.dropped,
		Resyncs:      st.Resyncs,
		SkippedBytes: st.SkippedBytes,
	})
}
