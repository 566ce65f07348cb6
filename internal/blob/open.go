package blob

import (
	"context"
	"fmt"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
)

// Open builds the store selected by storage.backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return NewLocalStore(cfg.Root), nil
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
