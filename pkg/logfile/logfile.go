package logfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultLimit is the rotation limit used when none is configured (500 MiB).
const DefaultLimit int64 = 500 << 20

// ErrClosed is returned by operations on a closed LogFile.
var ErrClosed = errors.New("logfile: closed")

// PartName returns the file name of part index for prefix.
func PartName(prefix string, index int) string {
	return fmt.Sprintf("%s_part_%03d.bin", prefix, index)
}

// LogFile owns one open part of a rotating log.
//
// Writes always go to the current part. Rotation only happens when the owner
// calls MaybeRotate, so the owner decides where part boundaries fall.
type LogFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	limit  int64

	file  *os.File
	index int
	size  int64
	total int64
}

// Open creates dir if needed and opens part 000 for prefix.
// A limit <= 0 selects DefaultLimit.
func Open(dir, prefix string, limit int64) (*LogFile, error) {
	if prefix == "" {
		return nil, errors.New("logfile: empty prefix")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	l := &LogFile{dir: dir, prefix: prefix, limit: limit}
	if err := l.openPart(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LogFile) openPart() error {
	f, err := os.OpenFile(l.pathOf(l.index), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open part %d: %w", l.index, err)
	}
	l.file = f
	l.size = 0
	return nil
}

// Write appends p to the current part.
func (l *LogFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, ErrClosed
	}
	n, err := l.file.Write(p)
	l.size += int64(n)
	l.total += int64(n)
	if err != nil {
		return n, fmt.Errorf("write part %d: %w", l.index, err)
	}
	return n, nil
}

// MaybeRotate closes the current part and opens the next one once the current
// part has reached the limit. It reports whether a rotation happened.
func (l *LogFile) MaybeRotate() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return false, ErrClosed
	}
	if l.size < l.limit {
		return false, nil
	}

	if err := l.closeFile(); err != nil {
		return false, err
	}
	l.index++
	if err := l.openPart(); err != nil {
		return false, err
	}
	return true, nil
}

// Close syncs and closes the current part. Closing twice is a no-op.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.closeFile()
}

func (l *LogFile) closeFile() error {
	f := l.file
	l.file = nil

	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return fmt.Errorf("sync part %d: %w", l.index, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close part %d: %w", l.index, closeErr)
	}
	return nil
}

// Index returns the zero-based index of the current part.
func (l *LogFile) Index() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index
}

// Size returns the bytes written to the current part.
func (l *LogFile) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Total returns the bytes written across all parts.
func (l *LogFile) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Path returns the path of the current part.
func (l *LogFile) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pathOf(l.index)
}

// Limit returns the rotation limit in bytes.
func (l *LogFile) Limit() int64 {
	return l.limit
}

func (l *LogFile) pathOf(index int) string {
	return filepath.Join(l.dir, PartName(l.prefix, index))
}

// Parts returns the existing parts of prefix in dir in index order.
// The sequence stops at the first missing index.
func Parts(dir, prefix string) ([]string, error) {
	var parts []string
	for i := 0; ; i++ {
		p := filepath.Join(dir, PartName(prefix, i))
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return parts, nil
			}
			return parts, err
		}
		parts = append(parts, p)
	}
}
