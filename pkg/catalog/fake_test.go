package catalog

import (
	"context"
	"sync"

	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

// --- Mock CollectionRepository ---

type mockUpdate struct {
	Id     string
	Fields types.ToolFields
}

type mockCollection struct {
	repository.CollectionRepository // embed to satisfy interface

	mu           sync.Mutex
	snapshot     types.Snapshot
	listeners    map[int]repository.SnapshotListener
	nextId       int
	created      []types.ToolFields
	updated      []mockUpdate
	deleted      []string
	unsubscribed int
	gate         chan struct{} // if set, writes block until it is closed
}

func newMockCollection(tools ...types.Tool) *mockCollection {
	return &mockCollection{
		snapshot:  types.Snapshot{Path: DefaultPath, Tools: tools},
		listeners: make(map[int]repository.SnapshotListener),
	}
}

func (m *mockCollection) Subscribe(_ context.Context, path string, fn repository.SnapshotListener) (func(), error) {
	m.mu.Lock()
	m.nextId++
	id := m.nextId
	m.listeners[id] = fn
	snapshot := m.snapshot
	m.mu.Unlock()

	fn(snapshot)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.listeners[id]; ok {
			delete(m.listeners, id)
			m.unsubscribed++
		}
	}, nil
}

func (m *mockCollection) wait() {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (m *mockCollection) Create(_ context.Context, _ string, fields types.ToolFields) (string, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, fields)
	return "generated", nil
}

func (m *mockCollection) Update(_ context.Context, _ string, id string, fields types.ToolFields) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, mockUpdate{Id: id, Fields: fields})
	return nil
}

func (m *mockCollection) Delete(_ context.Context, _ string, id string) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

// push delivers a full snapshot to every subscriber.
func (m *mockCollection) push(tools ...types.Tool) {
	m.mu.Lock()
	m.snapshot = types.Snapshot{Path: DefaultPath, Tools: tools}
	listeners := make([]repository.SnapshotListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	snapshot := m.snapshot
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (m *mockCollection) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *mockCollection) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// --- Helpers ---

func makeTool(id, name, url, description, category string) types.Tool {
	return types.Tool{Id: id, Name: name, Url: url, Description: description, Category: category}
}

func soraTool() types.Tool {
	return makeTool("k1", "Sora", "sora.com", "video gen", "Video")
}

func renderedIds(r Render) []string {
	ids := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		ids = append(ids, t.Id)
	}
	return ids
}
