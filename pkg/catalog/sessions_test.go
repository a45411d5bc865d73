package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

func TestSessionsReuseViewPerSession(t *testing.T) {
	collection := newMockCollection(soraTool())
	sessions := NewSessions(context.Background(), collection, ViewConfig{}, 8, time.Hour)
	defer sessions.Close()

	a, err := sessions.Get("a")
	require.NoError(t, err)
	again, err := sessions.Get("a")
	require.NoError(t, err)
	b, err := sessions.Get("b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, sessions.Len())
	assert.Equal(t, 2, collection.subscribers())

	// filters are per session
	a.SelectCategory(types.CategoryAudio)
	assert.Empty(t, a.Render().Tools)
	assert.Len(t, b.Render().Tools, 1)
}

func TestSessionsRemoveClosesView(t *testing.T) {
	collection := newMockCollection()
	sessions := NewSessions(context.Background(), collection, ViewConfig{}, 8, time.Hour)

	_, err := sessions.Get("a")
	require.NoError(t, err)
	sessions.Remove("a")

	assert.Equal(t, 0, sessions.Len())
	assert.Equal(t, 0, collection.subscribers())

	_, ok := sessions.Peek("a")
	assert.False(t, ok)
}

func TestSessionsEvictOldest(t *testing.T) {
	collection := newMockCollection()
	sessions := NewSessions(context.Background(), collection, ViewConfig{}, 2, time.Hour)
	defer sessions.Close()

	for _, id := range []string{"a", "b", "c"} {
		_, err := sessions.Get(id)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, sessions.Len())
	assert.Equal(t, 2, collection.subscribers())
	_, ok := sessions.Peek("a")
	assert.False(t, ok)
}

func TestSessionsCloseTearsDownAllViews(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collection := repository.NewCollectionMemoryRepositoryForTest(ctx)
	sessions := NewSessions(ctx, collection, ViewConfig{}, 8, time.Hour)

	v, err := sessions.Get("a")
	require.NoError(t, err)
	_, err = sessions.Get("b")
	require.NoError(t, err)

	sessions.Close()
	assert.Equal(t, 0, sessions.Len())

	// a closed view ignores later snapshots
	_, err = collection.Create(ctx, DefaultPath, soraTool().Fields())
	require.NoError(t, err)
	assert.Empty(t, v.Render().Tools)
}

func TestViewOverMemoryCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collection := repository.NewCollectionMemoryRepositoryForTest(ctx)

	v, err := NewView(ctx, collection, ViewConfig{})
	require.NoError(t, err)
	defer v.Close()

	v.SetDraft(soraTool().Fields())
	require.True(t, v.SubmitAdd(ctx))

	assert.Eventually(t, func() bool { return len(v.Render().Tools) == 1 }, time.Second, 5*time.Millisecond)
	id := v.Render().Tools[0].Id
	assert.NotEmpty(t, id)

	v.Delete(ctx, id)
	assert.Eventually(t, func() bool { return len(v.Render().Tools) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionsCloseWaitsForWrites(t *testing.T) {
	collection := newMockCollection()
	collection.gate = make(chan struct{})
	sessions := NewSessions(context.Background(), collection, ViewConfig{}, 8, time.Hour)

	v, err := sessions.Get("a")
	require.NoError(t, err)
	v.SetDraft(soraTool().Fields())
	require.True(t, v.SubmitAdd(context.Background()))

	closed := make(chan struct{})
	go func() {
		sessions.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(collection.gate)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the write finished")
	}
	assert.Equal(t, 1, collection.createdCount())

	_, err = sessions.Get("b")
	assert.ErrorIs(t, err, ErrSessionsClosed)
}

func TestSessionsExpiredViewIsClosedOnReplace(t *testing.T) {
	collection := newMockCollection()
	sessions := NewSessions(context.Background(), collection, ViewConfig{}, 8, 50*time.Millisecond)
	defer sessions.Close()

	old, err := sessions.Get("a")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	current, err := sessions.Get("a")
	require.NoError(t, err)
	assert.NotSame(t, old, current)
	assert.Equal(t, 1, collection.subscribers())

	old.SetSearch("ignored")
	assert.Empty(t, old.Render().Search)
}
