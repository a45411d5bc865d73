package repository

import (
	"context"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

// SnapshotListener receives the full contents of a collection path.
type SnapshotListener func(types.Snapshot)

// CollectionRepository is a real-time collection of tool records keyed by
// store-assigned ids. Subscribers receive a full snapshot on subscribe and
// again after every change under the path, whichever client made it.
type CollectionRepository interface {
	Subscribe(ctx context.Context, path string, fn SnapshotListener) (func(), error)
	Create(ctx context.Context, path string, fields types.ToolFields) (string, error)
	Update(ctx context.Context, path, id string, fields types.ToolFields) error
	Delete(ctx context.Context, path, id string) error
	Snapshot(ctx context.Context, path string) (types.Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}
