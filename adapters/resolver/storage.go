// Package resolver provides SourceResolver implementations.
package resolver

import (
	"context"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

// Storage resolves source identities against a StorageBackend holding
// ingested originals, stored as <id><ext> in the configured storage format.
type Storage struct {
	backend core.StorageBackend
	ext     string
}

// NewStorage creates a resolver reading originals in the given format.
func NewStorage(backend core.StorageBackend, format core.Format) *Storage {
	return &Storage{backend: backend, ext: format.Extension()}
}

func (s *Storage) Resolve(ctx context.Context, id string) ([]byte, error) {
	data, err := s.backend.Get(ctx, id+s.ext)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "resolver.storage",
				"%w: %s", apperrors.ErrNotFound, id)
		}
		return nil, err
	}
	return data, nil
}
