package serial

import (
	"context"
	"errors"
	"io"

	tarm "github.com/tarm/serial"

	"github.com/bft-labs/dualcap/internal/ports"
)

// TarmOpener opens serial devices with github.com/tarm/serial.
type TarmOpener struct{}

// Open opens cfg.Name 8N1 at cfg.Baud with a bounded read timeout.
func (TarmOpener) Open(ctx context.Context, cfg ports.SerialConfig) (ports.SerialPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &tarmPort{p: p}, nil
}

type tarmPort struct {
	p *tarm.Port
}

// Read returns 0, nil when the read timeout expires. On POSIX systems tarm
// surfaces an expired timeout as io.EOF.
func (t *tarmPort) Read(b []byte) (int, error) {
	n, err := t.p.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (t *tarmPort) Close() error {
	return t.p.Close()
}
