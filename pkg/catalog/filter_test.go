package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

func TestMatches(t *testing.T) {
	midjourney := makeTool("k2", "Midjourney", "midjourney.com", "Image generation from prompts", "Image")

	tests := []struct {
		name     string
		search   string
		category types.Category
		want     bool
	}{
		{"empty search all categories", "", types.CategoryAll, true},
		{"name substring", "journey", types.CategoryAll, true},
		{"name case insensitive", "MIDJ", types.CategoryAll, true},
		{"description substring", "from prompts", types.CategoryAll, true},
		{"description case insensitive", "IMAGE GEN", types.CategoryAll, true},
		{"url is not searched", "midjourney.com", types.CategoryAll, false},
		{"no text match", "video", types.CategoryAll, false},
		{"category match", "", types.CategoryImage, true},
		{"category mismatch", "", types.CategoryVideo, false},
		{"text match but category mismatch", "midj", types.CategoryAudio, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(midjourney, tt.search, tt.category))
		})
	}
}

func TestMatchesIdentityFilter(t *testing.T) {
	tools := []types.Tool{
		soraTool(),
		makeTool("k2", "", "", "", ""),
		makeTool("k3", "Whisper", "openai.com", "speech to text", "Audio"),
	}
	for _, tool := range tools {
		assert.True(t, Matches(tool, "", types.CategoryAll), tool.Id)
	}
}

func TestMatchesRequiresTextMatchForEveryCategory(t *testing.T) {
	tool := soraTool()
	for _, category := range types.FilterCategories() {
		assert.False(t, Matches(tool, "compiler", category), string(category))
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	tools := []types.Tool{
		makeTool("k3", "Zed", "zed.dev", "editor with ai", "Development"),
		makeTool("k1", "Cursor", "cursor.com", "ai editor", "Development"),
		makeTool("k2", "Suno", "suno.com", "music", "Audio"),
	}

	got := Filter(tools, "editor", types.CategoryAll)
	assert.Equal(t, []types.Tool{tools[0], tools[1]}, got)

	assert.Empty(t, Filter(nil, "", types.CategoryAll))
}

func TestFilterCategoryScenario(t *testing.T) {
	tools := []types.Tool{soraTool()}

	assert.Empty(t, Filter(tools, "", types.CategoryAudio))
	assert.Equal(t, tools, Filter(tools, "", types.CategoryVideo))
	assert.Equal(t, tools, Filter(tools, "", types.CategoryAll))
}
