package catalog

import (
	"strings"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

// Matches reports whether tool passes the search and category filters. The
// search term matches name or description case-insensitively; an empty term
// matches everything. The All category matches every record.
func Matches(tool types.Tool, search string, category types.Category) bool {
	term := strings.ToLower(search)
	textMatch := strings.Contains(strings.ToLower(tool.Name), term) ||
		strings.Contains(strings.ToLower(tool.Description), term)

	return textMatch && (category == types.CategoryAll || tool.Category == string(category))
}

// Filter returns the tools that match, preserving their order.
func Filter(tools []types.Tool, search string, category types.Category) []types.Tool {
	out := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		if Matches(tool, search, category) {
			out = append(out, tool)
		}
	}
	return out
}
