package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

const testPath = "tools"

// snapshotRecorder collects every snapshot delivered to a subscriber.
type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots []types.Snapshot
}

func (r *snapshotRecorder) listen(s types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *snapshotRecorder) last() types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func (r *snapshotRecorder) waitFor(t *testing.T, cond func(types.Snapshot) bool) types.Snapshot {
	t.Helper()
	var got types.Snapshot
	require.Eventually(t, func() bool {
		if r.count() == 0 {
			return false
		}
		got = r.last()
		return cond(got)
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func sora() types.ToolFields {
	return types.ToolFields{Name: "Sora", Url: "sora.com", Description: "video gen", Category: "Video"}
}

func backends(t *testing.T) map[string]func(ctx context.Context) CollectionRepository {
	return map[string]func(ctx context.Context) CollectionRepository{
		"memory": func(ctx context.Context) CollectionRepository {
			return NewCollectionMemoryRepositoryForTest(ctx)
		},
		"redis": func(ctx context.Context) CollectionRepository {
			rdb, err := NewRedisClientForTest()
			require.NoError(t, err)
			return NewCollectionRedisRepositoryForTest(ctx, rdb)
		},
	}
}

func TestCollectionSubscribeDeliversInitialSnapshot(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			repo := newRepo(ctx)
			defer repo.Close()

			id, err := repo.Create(ctx, testPath, sora())
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			rec := &snapshotRecorder{}
			unsubscribe, err := repo.Subscribe(ctx, testPath, rec.listen)
			require.NoError(t, err)
			defer unsubscribe()

			require.Equal(t, 1, rec.count())
			assert.Equal(t, []string{id}, rec.last().Ids())
			assert.Equal(t, "Sora", rec.last().Tools[0].Name)
		})
	}
}

func TestCollectionEmptySnapshot(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			repo := newRepo(ctx)
			defer repo.Close()

			rec := &snapshotRecorder{}
			unsubscribe, err := repo.Subscribe(ctx, testPath, rec.listen)
			require.NoError(t, err)
			defer unsubscribe()

			require.Equal(t, 1, rec.count())
			assert.Empty(t, rec.last().Tools)
			assert.Equal(t, testPath, rec.last().Path)
		})
	}
}

func TestCollectionWritesPushFullSnapshots(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			repo := newRepo(ctx)
			defer repo.Close()

			rec := &snapshotRecorder{}
			unsubscribe, err := repo.Subscribe(ctx, testPath, rec.listen)
			require.NoError(t, err)
			defer unsubscribe()

			k1, err := repo.Create(ctx, testPath, sora())
			require.NoError(t, err)
			k2, err := repo.Create(ctx, testPath, types.ToolFields{Name: "Suno", Url: "suno.com", Description: "music", Category: "Audio"})
			require.NoError(t, err)

			// snapshot order follows creation order
			rec.waitFor(t, func(s types.Snapshot) bool {
				return assert.ObjectsAreEqual([]string{k1, k2}, s.Ids())
			})

			updated := sora()
			updated.Category = "Generative AI"
			require.NoError(t, repo.Update(ctx, testPath, k1, updated))
			rec.waitFor(t, func(s types.Snapshot) bool {
				return len(s.Tools) == 2 && s.Tools[0].Category == "Generative AI"
			})

			require.NoError(t, repo.Delete(ctx, testPath, k1))
			got := rec.waitFor(t, func(s types.Snapshot) bool {
				return len(s.Tools) == 1
			})
			assert.Equal(t, []string{k2}, got.Ids())
		})
	}
}

func TestCollectionUpdateUnknownId(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			repo := newRepo(ctx)
			defer repo.Close()

			err := repo.Update(ctx, testPath, "missing", sora())
			require.Error(t, err)
			assert.True(t, (&types.ErrToolNotFound{}).From(err))

			assert.NoError(t, repo.Delete(ctx, testPath, "missing"))
		})
	}
}

func TestCollectionPathsAreIsolated(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			repo := newRepo(ctx)
			defer repo.Close()

			_, err := repo.Create(ctx, "other", sora())
			require.NoError(t, err)

			snapshot, err := repo.Snapshot(ctx, testPath)
			require.NoError(t, err)
			assert.Empty(t, snapshot.Tools)
		})
	}
}

func TestCollectionUnsubscribeStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := NewCollectionMemoryRepositoryForTest(ctx)

	rec := &snapshotRecorder{}
	unsubscribe, err := repo.Subscribe(ctx, testPath, rec.listen)
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()

	_, err = repo.Create(ctx, testPath, sora())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
}

func TestCollectionRedisSharedAcrossClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := NewRedisClientForTest()
	require.NoError(t, err)

	// two gateway replicas on the same redis
	writer := NewCollectionRedisRepositoryForTest(ctx, rdb)
	reader := NewCollectionRedisRepositoryForTest(ctx, rdb)

	rec := &snapshotRecorder{}
	unsubscribe, err := reader.Subscribe(ctx, testPath, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	id, err := writer.Create(ctx, testPath, sora())
	require.NoError(t, err)

	got := rec.waitFor(t, func(s types.Snapshot) bool { return len(s.Tools) == 1 })
	assert.Equal(t, id, got.Tools[0].Id)
}

func TestCollectionRedisUnavailableDeliversEmptySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := NewRedisClientForTest()
	require.NoError(t, err)
	repo := NewCollectionRedisRepositoryForTest(ctx, rdb)
	defer repo.Close()

	_, err = repo.Create(ctx, testPath, sora())
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	rec := &snapshotRecorder{}
	unsubscribe, err := repo.Subscribe(ctx, testPath, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, testPath, rec.last().Path)
	assert.Empty(t, rec.last().Tools)
}

func TestNotifierFailedReloadKeepsLastSnapshot(t *testing.T) {
	var (
		mu   sync.Mutex
		fail bool
		next = types.Snapshot{Path: testPath, Tools: []types.Tool{types.NewTool("a", sora())}}
	)
	load := func(_ context.Context, path string) (types.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return types.Snapshot{}, assert.AnError
		}
		return next, nil
	}

	n := newCollectionNotifier(context.Background(), load)
	rec := &snapshotRecorder{}
	unsubscribe := n.subscribe(context.Background(), testPath, rec.listen)
	defer unsubscribe()
	require.Equal(t, 1, rec.count())

	mu.Lock()
	fail = true
	mu.Unlock()
	n.notify(testPath)

	assert.Equal(t, 1, rec.count())
	assert.Len(t, rec.last().Tools, 1)

	mu.Lock()
	fail = false
	next = types.Snapshot{Path: testPath}
	mu.Unlock()
	n.notify(testPath)

	assert.Equal(t, 2, rec.count())
	assert.Empty(t, rec.last().Tools)
}

func TestNotifierFailedInitialLoadIsEmpty(t *testing.T) {
	load := func(context.Context, string) (types.Snapshot, error) {
		return types.Snapshot{}, assert.AnError
	}

	n := newCollectionNotifier(context.Background(), load)
	rec := &snapshotRecorder{}
	unsubscribe := n.subscribe(context.Background(), testPath, rec.listen)
	defer unsubscribe()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, types.Snapshot{Path: testPath}, rec.last())
}

func TestCollectionRedisConcurrentUpdatesAllLand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := NewRedisClientForTest()
	require.NoError(t, err)

	// two replicas editing the same record at once
	a := NewCollectionRedisRepositoryForTest(ctx, rdb)
	b := NewCollectionRedisRepositoryForTest(ctx, rdb)

	id, err := a.Create(ctx, testPath, sora())
	require.NoError(t, err)

	const writers = 20
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		repo := CollectionRepository(a)
		if i%2 == 1 {
			repo = b
		}
		fields := sora()
		fields.Description = fmt.Sprintf("edit %d", i)

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Update(ctx, testPath, id, fields)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	snapshot, err := a.Snapshot(ctx, testPath)
	require.NoError(t, err)
	require.Len(t, snapshot.Tools, 1)
	assert.Contains(t, snapshot.Tools[0].Description, "edit ")
}
