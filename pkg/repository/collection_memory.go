package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

// CollectionMemoryRepository implements CollectionRepository in-process.
// This is used for local mode where we don't have Redis or Postgres.
type CollectionMemoryRepository struct {
	mu       sync.RWMutex
	records  map[string]map[string]types.ToolFields // path -> id -> fields
	bus      *common.EventBus
	notifier *collectionNotifier
	off      func()
}

// NewCollectionMemoryRepository creates a new in-memory collection. Change
// events go through bus, so a bus without redis keeps everything in-process.
func NewCollectionMemoryRepository(ctx context.Context, bus *common.EventBus) *CollectionMemoryRepository {
	r := &CollectionMemoryRepository{
		records: make(map[string]map[string]types.ToolFields),
		bus:     bus,
	}
	r.notifier = newCollectionNotifier(ctx, r.Snapshot)
	r.off = bus.On(common.EventCollectionChanged, func(e common.Event) {
		r.notifier.notify(e.Path())
	})
	return r
}

func (r *CollectionMemoryRepository) Subscribe(ctx context.Context, path string, fn SnapshotListener) (func(), error) {
	return r.notifier.subscribe(ctx, path, fn), nil
}

func (r *CollectionMemoryRepository) Create(ctx context.Context, path string, fields types.ToolFields) (string, error) {
	id := common.GenerateToolID()

	r.mu.Lock()
	if r.records[path] == nil {
		r.records[path] = make(map[string]types.ToolFields)
	}
	r.records[path][id] = fields
	r.mu.Unlock()

	r.bus.Emit(common.CollectionChanged(path))
	return id, nil
}

func (r *CollectionMemoryRepository) Update(ctx context.Context, path, id string, fields types.ToolFields) error {
	r.mu.Lock()
	if _, ok := r.records[path][id]; !ok {
		r.mu.Unlock()
		return &types.ErrToolNotFound{Path: path, Id: id}
	}
	r.records[path][id] = fields
	r.mu.Unlock()

	r.bus.Emit(common.CollectionChanged(path))
	return nil
}

func (r *CollectionMemoryRepository) Delete(ctx context.Context, path, id string) error {
	r.mu.Lock()
	_, existed := r.records[path][id]
	delete(r.records[path], id)
	r.mu.Unlock()

	if existed {
		r.bus.Emit(common.CollectionChanged(path))
	}
	return nil
}

func (r *CollectionMemoryRepository) Snapshot(ctx context.Context, path string) (types.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]types.Tool, 0, len(r.records[path]))
	for id, fields := range r.records[path] {
		tools = append(tools, types.NewTool(id, fields))
	}
	sortTools(tools)
	return types.Snapshot{Path: path, Tools: tools}, nil
}

func (r *CollectionMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *CollectionMemoryRepository) Close() error {
	r.off()
	return nil
}

func sortTools(tools []types.Tool) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Id < tools[j].Id })
}
