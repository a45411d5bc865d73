package repository

import (
	"context"

	"github.com/alicebob/miniredis/v2"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

// NewRedisClientForTest creates a Redis client backed by miniredis for testing
func NewRedisClientForTest() (*common.RedisClient, error) {
	s, err := miniredis.Run()
	if err != nil {
		return nil, err
	}

	rdb, err := common.NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	})
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewCollectionRedisRepositoryForTest creates a CollectionRepository backed by
// miniredis with a running event bus. The bus stops when ctx is cancelled.
func NewCollectionRedisRepositoryForTest(ctx context.Context, rdb *common.RedisClient) *CollectionRedisRepository {
	bus := common.NewEventBus(ctx, rdb)
	go bus.Start()
	<-bus.Ready()
	return NewCollectionRedisRepository(ctx, rdb, bus)
}

// NewCollectionMemoryRepositoryForTest creates an in-process CollectionRepository.
func NewCollectionMemoryRepositoryForTest(ctx context.Context) *CollectionMemoryRepository {
	return NewCollectionMemoryRepository(ctx, common.NewEventBus(ctx, nil))
}
