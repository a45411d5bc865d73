package types

import (
	"net/url"
	"strings"
)

// Category classifies a catalog entry. The set is closed.
type Category string

const (
	CategoryAll          Category = "All" // filter-only, never persisted
	CategoryImage        Category = "Image"
	CategoryVideo        Category = "Video"
	CategoryAudio        Category = "Audio"
	CategoryDevelopment  Category = "Development"
	CategoryProductivity Category = "Productivity"
	CategoryGenerativeAI Category = "Generative AI"
	CategoryOthers       Category = "Others"
)

// Categories returns the persistable categories in display order.
func Categories() []Category {
	return []Category{
		CategoryImage,
		CategoryVideo,
		CategoryAudio,
		CategoryDevelopment,
		CategoryProductivity,
		CategoryGenerativeAI,
		CategoryOthers,
	}
}

// FilterCategories returns the categories offered by the filter selector,
// starting with the All sentinel.
func FilterCategories() []Category {
	return append([]Category{CategoryAll}, Categories()...)
}

// Valid reports whether c may be stored on a record.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// IsFilter reports whether c is usable as a filter selection.
func (c Category) IsFilter() bool {
	return c == CategoryAll || c.Valid()
}

// ToolFields is the flat field set persisted for each record.
type ToolFields struct {
	Name        string `json:"name" yaml:"name"`
	Url         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
}

// Complete reports whether every field is non-empty.
func (f ToolFields) Complete() bool {
	return f.Name != "" && f.Url != "" && f.Description != "" && f.Category != ""
}

// Tool is one catalog entry. Id is assigned by the collection on create.
type Tool struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Url         string `json:"url"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func NewTool(id string, f ToolFields) Tool {
	return Tool{
		Id:          id,
		Name:        f.Name,
		Url:         f.Url,
		Description: f.Description,
		Category:    f.Category,
	}
}

// Fields returns the persisted portion of the record.
func (t Tool) Fields() ToolFields {
	return ToolFields{
		Name:        t.Name,
		Url:         t.Url,
		Description: t.Description,
		Category:    t.Category,
	}
}

// Complete reports whether all four persisted fields are non-empty.
func (t Tool) Complete() bool {
	return t.Fields().Complete()
}

// FaviconURL returns the favicon service URL rendered next to the tool name.
func (t Tool) FaviconURL() string {
	return "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(strings.TrimSpace(t.Url)) + "&sz=32"
}

// Snapshot is the full contents of a collection path at one point in time.
// Tools are ordered by id, which is time-ordered, so the order is insertion order.
type Snapshot struct {
	Path  string `json:"path"`
	Tools []Tool `json:"tools"`
}

// Ids returns the record ids in snapshot order.
func (s Snapshot) Ids() []string {
	ids := make([]string, 0, len(s.Tools))
	for _, t := range s.Tools {
		ids = append(ids, t.Id)
	}
	return ids
}
