package ports

import (
	"context"

	"github.com/bft-labs/dualcap/internal/domain"
)

// MetadataStore persists the session metadata sidecar.
type MetadataStore interface {
	// Save writes metadata atomically. It fails if metadata already exists.
	Save(ctx context.Context, md domain.SessionMetadata) error

	// Load reads the sidecar back.
	Load(ctx context.Context) (domain.SessionMetadata, error)
}
