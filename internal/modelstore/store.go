package modelstore

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New builds a model store from configuration.
func New(ctx context.Context, cfg domain.ModelStoreConfig) (domain.ModelStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown model store backend %q", domain.ErrInvalidInput, cfg.Backend)
	}
}
