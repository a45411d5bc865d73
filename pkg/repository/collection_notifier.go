package repository

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

type snapshotLoader func(ctx context.Context, path string) (types.Snapshot, error)

type pathListeners struct {
	mu        sync.Mutex // serializes load+deliver so deliveries never go backwards
	listeners map[uint64]SnapshotListener
}

// collectionNotifier tracks subscribers per path and pushes a freshly loaded
// full snapshot to all of them whenever a path changes.
type collectionNotifier struct {
	ctx    context.Context
	load   snapshotLoader
	mu     sync.Mutex
	paths  map[string]*pathListeners
	nextId uint64
}

func newCollectionNotifier(ctx context.Context, load snapshotLoader) *collectionNotifier {
	return &collectionNotifier{
		ctx:   ctx,
		load:  load,
		paths: make(map[string]*pathListeners),
	}
}

func (n *collectionNotifier) entry(path string, create bool) *pathListeners {
	n.mu.Lock()
	defer n.mu.Unlock()
	pl, ok := n.paths[path]
	if !ok && create {
		pl = &pathListeners{listeners: make(map[uint64]SnapshotListener)}
		n.paths[path] = pl
	}
	return pl
}

// subscribe registers fn and delivers the current snapshot before returning.
// A failed initial load is delivered as an empty snapshot.
func (n *collectionNotifier) subscribe(ctx context.Context, path string, fn SnapshotListener) func() {
	pl := n.entry(path, true)

	n.mu.Lock()
	n.nextId++
	id := n.nextId
	n.mu.Unlock()

	pl.mu.Lock()
	pl.listeners[id] = fn
	snapshot, err := n.load(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("initial snapshot load failed")
		snapshot = types.Snapshot{Path: path}
	}
	fn(snapshot)
	pl.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pl.mu.Lock()
			delete(pl.listeners, id)
			pl.mu.Unlock()
		})
	}
}

// notify reloads path and delivers the snapshot to its subscribers. A failed
// load keeps the last delivered snapshot in place.
func (n *collectionNotifier) notify(path string) {
	pl := n.entry(path, false)
	if pl == nil {
		return
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.listeners) == 0 {
		return
	}

	snapshot, err := n.load(n.ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("snapshot reload failed")
		return
	}

	for _, fn := range pl.listeners {
		fn(snapshot)
	}
}

// subscribedPaths returns every path with at least one listener.
func (n *collectionNotifier) subscribedPaths() []string {
	n.mu.Lock()
	paths := make([]string, 0, len(n.paths))
	entries := make([]*pathListeners, 0, len(n.paths))
	for path, pl := range n.paths {
		paths = append(paths, path)
		entries = append(entries, pl)
	}
	n.mu.Unlock()

	out := make([]string, 0, len(paths))
	for i, pl := range entries {
		pl.mu.Lock()
		if len(pl.listeners) > 0 {
			out = append(out, paths[i])
		}
		pl.mu.Unlock()
	}
	return out
}
