package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

// Record locks only cover a read and a write, so contenders wait for their
// turn instead of failing. Concurrent writers end up last-write-wins.
var recordLockOptions = common.RedisLockOptions{TtlS: 10, Retries: 500, RetryDelay: 10 * time.Millisecond}

// CollectionRedisRepository implements CollectionRepository using a redis hash
// per path. Writes publish a change event on the shared event bus so every
// gateway replica reloads and pushes the snapshot to its subscribers.
type CollectionRedisRepository struct {
	rdb      *common.RedisClient
	lock     *common.RedisLock
	bus      *common.EventBus
	notifier *collectionNotifier
	off      func()
}

func NewCollectionRedisRepository(ctx context.Context, rdb *common.RedisClient, bus *common.EventBus) *CollectionRedisRepository {
	r := &CollectionRedisRepository{
		rdb:  rdb,
		lock: common.NewRedisLock(rdb),
		bus:  bus,
	}
	r.notifier = newCollectionNotifier(ctx, r.Snapshot)
	r.off = bus.On(common.EventCollectionChanged, func(e common.Event) {
		r.notifier.notify(e.Path())
	})
	return r
}

func (r *CollectionRedisRepository) Subscribe(ctx context.Context, path string, fn SnapshotListener) (func(), error) {
	return r.notifier.subscribe(ctx, path, fn), nil
}

func (r *CollectionRedisRepository) Create(ctx context.Context, path string, fields types.ToolFields) (string, error) {
	id := common.GenerateToolID()

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	if err := r.rdb.HSet(ctx, common.Keys.CollectionRecords(path), id, data).Err(); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	r.bus.Emit(common.CollectionChanged(path))
	return id, nil
}

func (r *CollectionRedisRepository) Update(ctx context.Context, path, id string, fields types.ToolFields) error {
	lockKey := common.Keys.CollectionLock(path, id)
	if err := r.lock.Acquire(ctx, lockKey, recordLockOptions); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer r.release(lockKey)

	recordsKey := common.Keys.CollectionRecords(path)
	exists, err := r.rdb.HExists(ctx, recordsKey, id).Result()
	if err != nil {
		return err
	}
	if !exists {
		return &types.ErrToolNotFound{Path: path, Id: id}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := r.rdb.HSet(ctx, recordsKey, id, data).Err(); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	r.bus.Emit(common.CollectionChanged(path))
	return nil
}

func (r *CollectionRedisRepository) Delete(ctx context.Context, path, id string) error {
	lockKey := common.Keys.CollectionLock(path, id)
	if err := r.lock.Acquire(ctx, lockKey, recordLockOptions); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer r.release(lockKey)

	removed, err := r.rdb.HDel(ctx, common.Keys.CollectionRecords(path), id).Result()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if removed > 0 {
		r.bus.Emit(common.CollectionChanged(path))
	}
	return nil
}

func (r *CollectionRedisRepository) Snapshot(ctx context.Context, path string) (types.Snapshot, error) {
	entries, err := r.rdb.HGetAll(ctx, common.Keys.CollectionRecords(path)).Result()
	if err != nil {
		return types.Snapshot{}, err
	}

	tools := make([]types.Tool, 0, len(entries))
	for id, raw := range entries {
		var fields types.ToolFields
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			log.Warn().Err(err).Str("path", path).Str("id", id).Msg("skipping malformed record")
			continue
		}
		tools = append(tools, types.NewTool(id, fields))
	}
	sortTools(tools)

	return types.Snapshot{Path: path, Tools: tools}, nil
}

func (r *CollectionRedisRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *CollectionRedisRepository) Close() error {
	r.off()
	return nil
}

func (r *CollectionRedisRepository) release(lockKey string) {
	if err := r.lock.Release(lockKey); err != nil {
		log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release record lock")
	}
}
