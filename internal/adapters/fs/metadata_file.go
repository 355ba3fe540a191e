package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/dualcap/internal/domain"
)

// MetadataFileName is the sidecar written into every session directory.
const MetadataFileName = "metadata.json"

// ErrMetadataExists is returned when a session directory already holds metadata.
var ErrMetadataExists = errors.New("session metadata already written")

// MetadataFile implements ports.MetadataStore using a JSON file.
type MetadataFile struct {
	dir string
}

// NewMetadataFile creates a store for the given session directory.
func NewMetadataFile(dir string) *MetadataFile {
	return &MetadataFile{dir: dir}
}

// Load reads the sidecar.
func (m *MetadataFile) Load(ctx context.Context) (domain.SessionMetadata, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return domain.SessionMetadata{}, err
	}

	var md domain.SessionMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return domain.SessionMetadata{}, fmt.Errorf("decode %s: %w", MetadataFileName, err)
	}
	return md, nil
}

// Save writes the sidecar once: temp file, fsync, then rename.
func (m *MetadataFile) Save(ctx context.Context, md domain.SessionMetadata) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}

	path := m.Path()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrMetadataExists, path)
	}

	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// Path returns the full path to the sidecar.
func (m *MetadataFile) Path() string {
	return filepath.Join(m.dir, MetadataFileName)
}
