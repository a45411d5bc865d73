package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	latestObject      = "latest.json"
	snapshotMediaType = "application/json"

	DefaultDebounce = 30 * time.Second
)

// ObjectStore is the slice of clients.StorageClient the archiver needs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

type Config struct {
	Path     string
	Prefix   string
	Debounce time.Duration
}

// Archive is the document written for every archived snapshot.
type Archive struct {
	Path       string       `json:"path"`
	ArchivedAt time.Time    `json:"archived_at"`
	Tools      []types.Tool `json:"tools"`
}

// Archiver uploads the catalog to object storage after it settles. Bursts of
// changes are coalesced into one upload per debounce window.
type Archiver struct {
	ctx        context.Context
	collection repository.CollectionRepository
	store      ObjectStore
	cfg        Config
	debouncer  *common.Debouncer
	now        func() time.Time

	mu          sync.Mutex
	latest      types.Snapshot
	dirty       bool
	seen        bool
	unsubscribe func()
	uploadMu    sync.Mutex
}

func NewArchiver(ctx context.Context, collection repository.CollectionRepository, store ObjectStore, cfg Config) *Archiver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Archiver{
		ctx:        ctx,
		collection: collection,
		store:      store,
		cfg:        cfg,
		debouncer:  common.NewDebouncer(cfg.Debounce),
		now:        time.Now,
	}
}

// Start subscribes to the catalog path. The snapshot delivered on subscribe
// is the current state and is not archived by itself.
func (a *Archiver) Start() error {
	unsubscribe, err := a.collection.Subscribe(a.ctx, a.cfg.Path, a.onSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", a.cfg.Path, err)
	}

	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()

	log.Info().Str("path", a.cfg.Path).Dur("debounce", a.cfg.Debounce).Msg("snapshot archiver started")
	return nil
}

func (a *Archiver) onSnapshot(snapshot types.Snapshot) {
	a.mu.Lock()
	a.latest = snapshot
	first := !a.seen
	a.seen = true
	if !first {
		a.dirty = true
	}
	a.mu.Unlock()

	if first {
		return
	}
	a.debouncer.Call(a.cfg.Path, func() {
		if err := a.Flush(a.ctx); err != nil {
			log.Error().Err(err).Str("path", a.cfg.Path).Msg("failed to archive snapshot")
		}
	})
}

// Flush uploads the latest snapshot now if it has not been archived yet.
func (a *Archiver) Flush(ctx context.Context) error {
	a.uploadMu.Lock()
	defer a.uploadMu.Unlock()

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	snapshot := a.latest
	a.dirty = false
	a.mu.Unlock()

	archivedAt := a.now().UTC()
	data, err := json.Marshal(Archive{Path: snapshot.Path, ArchivedAt: archivedAt, Tools: snapshot.Tools})
	if err != nil {
		return err
	}

	key := a.key(fmt.Sprintf("%d.json", archivedAt.UnixMilli()))
	for _, k := range []string{key, a.key(latestObject)} {
		if err := a.store.Upload(ctx, k, snapshotMediaType, data); err != nil {
			a.mu.Lock()
			a.dirty = true
			a.mu.Unlock()
			return err
		}
	}

	log.Debug().Str("key", key).Int("tools", len(snapshot.Tools)).Msg("snapshot archived")
	return nil
}

// Restore re-creates the records of the latest archive when the catalog path
// is empty. Records get new ids, created in archived order. It returns the
// number of records created.
func (a *Archiver) Restore(ctx context.Context) (int, error) {
	current, err := a.collection.Snapshot(ctx, a.cfg.Path)
	if err != nil {
		return 0, err
	}
	if len(current.Tools) > 0 {
		return 0, nil
	}

	data, err := a.store.Download(ctx, a.key(latestObject))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return 0, fmt.Errorf("decode archive: %w", err)
	}

	restored := 0
	for _, t := range archive.Tools {
		if _, err := a.collection.Create(ctx, a.cfg.Path, t.Fields()); err != nil {
			return restored, err
		}
		restored++
	}

	log.Info().Str("path", a.cfg.Path).Int("tools", restored).Time("archived_at", archive.ArchivedAt).Msg("catalog restored from archive")
	return restored, nil
}

// Close stops listening and uploads any change still waiting on the debounce.
func (a *Archiver) Close() error {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.debouncer.Stop()

	return a.Flush(context.WithoutCancel(a.ctx))
}

func (a *Archiver) key(name string) string {
	return path.Join(a.cfg.Prefix, a.cfg.Path, name)
}
