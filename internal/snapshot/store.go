package snapshot

import (
	"context"

	"flatwatch/internal/model"
)

// Store keeps the most recent snapshot. Save replaces the previous one entirely.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, s model.Snapshot) error
}
