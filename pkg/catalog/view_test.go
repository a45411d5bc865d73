package catalog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

func newTestView(t *testing.T, collection repository.CollectionRepository) *View {
	t.Helper()
	v, err := NewView(context.Background(), collection, ViewConfig{CelebrationDuration: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func TestViewAppliesInitialSnapshot(t *testing.T) {
	collection := newMockCollection(soraTool())
	v := newTestView(t, collection)

	r := v.Render()
	assert.Equal(t, []string{"k1"}, renderedIds(r))
	assert.Equal(t, types.CategoryAll, r.Category)
	assert.Equal(t, types.FilterCategories(), r.Categories)
	assert.Equal(t, DialogClosed, r.AddDialog)
	assert.Equal(t, DialogClosed, r.EditDialog)
}

func TestViewSnapshotReplacesListWholesale(t *testing.T) {
	collection := newMockCollection()
	v := newTestView(t, collection)

	collection.push(
		makeTool("a", "Alpha", "a.com", "first", "Image"),
		makeTool("b", "Beta", "b.com", "second", "Video"),
	)
	assert.Equal(t, []string{"a", "b"}, renderedIds(v.Render()))

	collection.push(makeTool("c", "Gamma", "c.com", "third", "Audio"))
	assert.Equal(t, []string{"c"}, renderedIds(v.Render()))

	// an empty snapshot empties the grid
	collection.push()
	assert.Empty(t, v.Render().Tools)
}

func TestViewHidesIncompleteRecords(t *testing.T) {
	collection := newMockCollection(
		soraTool(),
		makeTool("k2", "Half", "", "missing url", "Image"),
	)
	v := newTestView(t, collection)

	r := v.Render()
	assert.Equal(t, []string{"k1"}, renderedIds(r))
	assert.Equal(t, 1, r.Total)
	assert.Len(t, v.Tools(), 2)
}

func TestViewSearchAndCategory(t *testing.T) {
	collection := newMockCollection(soraTool())
	v := newTestView(t, collection)

	v.SelectCategory(types.CategoryAudio)
	assert.Empty(t, v.Render().Tools)

	v.SelectCategory(types.CategoryVideo)
	assert.Equal(t, []string{"k1"}, renderedIds(v.Render()))

	v.SelectCategory(types.CategoryAll)
	assert.Equal(t, []string{"k1"}, renderedIds(v.Render()))

	v.SetSearch("GEN")
	assert.Equal(t, []string{"k1"}, renderedIds(v.Render()))

	v.SetSearch("music")
	assert.Empty(t, v.Render().Tools)
	assert.Equal(t, "music", v.Render().Search)
}

func TestViewSelectUnknownCategoryFallsBackToAll(t *testing.T) {
	v := newTestView(t, newMockCollection(soraTool()))

	v.SelectCategory(types.CategoryVideo)
	v.SelectCategory("Robotics")
	assert.Equal(t, types.CategoryAll, v.Render().Category)
}

func TestViewSubmitAddRejectsIncompleteDraft(t *testing.T) {
	collection := newMockCollection()
	v := newTestView(t, collection)

	v.OpenAdd()
	draft := types.ToolFields{Name: "X", Url: "", Description: "d", Category: "Image"}
	v.SetDraft(draft)

	assert.False(t, v.SubmitAdd(context.Background()))
	v.Wait()

	assert.Equal(t, 0, collection.createdCount())
	r := v.Render()
	assert.Equal(t, DialogOpen, r.AddDialog)
	assert.Equal(t, draft, r.Draft)
	assert.False(t, r.Celebrating)
}

func TestViewRejectsUnstorableCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
	}{
		{"filter sentinel", string(types.CategoryAll)},
		{"unknown label", "Bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collection := newMockCollection(soraTool())
			v := newTestView(t, collection)

			v.OpenAdd()
			v.SetDraft(types.ToolFields{Name: "X", Url: "x.com", Description: "d", Category: tt.category})
			assert.False(t, v.SubmitAdd(context.Background()))

			require.True(t, v.OpenEdit("k1"))
			fields := soraTool().Fields()
			fields.Category = tt.category
			v.SetEditing(fields)
			assert.False(t, v.SubmitEdit(context.Background()))

			v.Wait()
			assert.Equal(t, 0, collection.createdCount())
			assert.Empty(t, collection.updated)

			r := v.Render()
			assert.Equal(t, DialogOpen, r.AddDialog)
			assert.Equal(t, DialogOpen, r.EditDialog)
			assert.False(t, r.Celebrating)
		})
	}
}

func TestViewSubmitAddDoesNotWaitForWrite(t *testing.T) {
	collection := newMockCollection()
	collection.gate = make(chan struct{})
	v := newTestView(t, collection)

	v.OpenAdd()
	draft := soraTool().Fields()
	v.SetDraft(draft)

	require.True(t, v.SubmitAdd(context.Background()))

	// UI state advanced while the write is still blocked
	r := v.Render()
	assert.Equal(t, DialogClosed, r.AddDialog)
	assert.Equal(t, types.ToolFields{}, r.Draft)
	assert.True(t, r.Celebrating)
	assert.Equal(t, 0, collection.createdCount())

	close(collection.gate)
	v.Wait()
	require.Equal(t, 1, collection.createdCount())
	assert.Equal(t, draft, collection.created[0])
}

func TestViewCelebrationClears(t *testing.T) {
	v := newTestView(t, newMockCollection())

	v.SetDraft(soraTool().Fields())
	require.True(t, v.SubmitAdd(context.Background()))
	assert.True(t, v.Celebrating())

	assert.Eventually(t, func() bool { return !v.Celebrating() }, time.Second, 5*time.Millisecond)
}

func TestViewToggleAddKeepsDraft(t *testing.T) {
	v := newTestView(t, newMockCollection())

	v.ToggleAdd()
	assert.Equal(t, DialogOpen, v.Render().AddDialog)

	v.SetDraft(types.ToolFields{Name: "partial"})
	v.ToggleAdd()

	r := v.Render()
	assert.Equal(t, DialogClosed, r.AddDialog)
	assert.Equal(t, "partial", r.Draft.Name)
}

func TestViewEditScenario(t *testing.T) {
	collection := newMockCollection(soraTool())
	v := newTestView(t, collection)

	require.True(t, v.OpenEdit("k1"))
	assert.Equal(t, DialogOpen, v.Render().EditDialog)
	assert.Equal(t, soraTool(), v.Render().Editing)

	fields := soraTool().Fields()
	fields.Category = string(types.CategoryGenerativeAI)
	v.SetEditing(fields)

	require.True(t, v.SubmitEdit(context.Background()))
	r := v.Render()
	assert.Equal(t, DialogClosed, r.EditDialog)
	assert.True(t, r.Celebrating)

	v.Wait()
	require.Len(t, collection.updated, 1)
	assert.Equal(t, mockUpdate{
		Id: "k1",
		Fields: types.ToolFields{
			Name:        "Sora",
			Url:         "sora.com",
			Description: "video gen",
			Category:    "Generative AI",
		},
	}, collection.updated[0])

	// the view only changes once the store pushes the new snapshot
	v.SelectCategory(types.CategoryGenerativeAI)
	assert.Empty(t, v.Render().Tools)

	updated := soraTool()
	updated.Category = "Generative AI"
	collection.push(updated)

	assert.Equal(t, []string{"k1"}, renderedIds(v.Render()))
	v.SelectCategory(types.CategoryVideo)
	assert.Empty(t, v.Render().Tools)
}

func TestViewSubmitEditRejectsIncomplete(t *testing.T) {
	collection := newMockCollection(soraTool())
	v := newTestView(t, collection)

	require.True(t, v.OpenEdit("k1"))
	fields := soraTool().Fields()
	fields.Name = ""
	v.SetEditing(fields)

	assert.False(t, v.SubmitEdit(context.Background()))
	v.Wait()
	assert.Empty(t, collection.updated)
	assert.Equal(t, DialogOpen, v.Render().EditDialog)
}

func TestViewEditRequiresOpenDialog(t *testing.T) {
	collection := newMockCollection(soraTool())
	v := newTestView(t, collection)

	assert.False(t, v.OpenEdit("unknown"))
	assert.False(t, v.SubmitEdit(context.Background()))

	require.True(t, v.OpenEdit("k1"))
	v.CancelEdit()
	assert.Equal(t, DialogClosed, v.Render().EditDialog)
	assert.False(t, v.SubmitEdit(context.Background()))

	v.Wait()
	assert.Empty(t, collection.updated)
}

func TestViewDeleteThenSnapshot(t *testing.T) {
	k2 := makeTool("k2", "Suno", "suno.com", "music", "Audio")
	collection := newMockCollection(soraTool(), k2)
	v := newTestView(t, collection)

	v.Delete(context.Background(), "k1")
	v.Wait()
	assert.Equal(t, []string{"k1"}, collection.deleted)

	// still rendered until the store confirms
	assert.Equal(t, []string{"k1", "k2"}, renderedIds(v.Render()))

	collection.push(k2)
	assert.Equal(t, []string{"k2"}, renderedIds(v.Render()))
}

func TestViewWatch(t *testing.T) {
	collection := newMockCollection()
	v := newTestView(t, collection)

	var calls atomic.Int32
	stop := v.Watch(func() { calls.Add(1) })

	collection.push(soraTool())
	v.SetSearch("sora")
	assert.Equal(t, int32(2), calls.Load())

	stop()
	v.SetSearch("")
	assert.Equal(t, int32(2), calls.Load())
}

func TestViewClose(t *testing.T) {
	collection := newMockCollection(soraTool())
	v, err := NewView(context.Background(), collection, ViewConfig{CelebrationDuration: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, collection.subscribers())

	v.SetDraft(soraTool().Fields())
	require.True(t, v.SubmitAdd(context.Background()))
	assert.True(t, v.Celebrating())

	v.Close()
	v.Close()

	assert.Equal(t, 0, collection.subscribers())
	assert.Equal(t, 1, collection.unsubscribed)
	assert.False(t, v.Celebrating())
	assert.False(t, v.celebration.Pending(celebrationKey))

	// no further mutations after close
	v.SetDraft(soraTool().Fields())
	assert.False(t, v.SubmitAdd(context.Background()))
	v.Wait()
	assert.Equal(t, 1, collection.createdCount())
}
