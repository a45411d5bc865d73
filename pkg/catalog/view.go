package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	DefaultPath                = "tools"
	DefaultCelebrationDuration = 5 * time.Second

	celebrationKey = "celebration"
)

// DialogState is the state of the add or edit dialog. Submission is treated
// as instantaneous, so there is no submitting state.
type DialogState int

const (
	DialogClosed DialogState = iota
	DialogOpen
)

func (s DialogState) String() string {
	if s == DialogOpen {
		return "open"
	}
	return "closed"
}

type ViewConfig struct {
	Path                string
	CelebrationDuration time.Duration
}

// Render is everything needed to draw the catalog page.
type Render struct {
	Tools       []types.Tool     `json:"tools"` // filtered, complete records in snapshot order
	Total       int              `json:"total"`
	Search      string           `json:"search"`
	Category    types.Category   `json:"category"`
	Categories  []types.Category `json:"categories"`
	AddDialog   DialogState      `json:"add_dialog"`
	Draft       types.ToolFields `json:"draft"`
	EditDialog  DialogState      `json:"edit_dialog"`
	Editing     types.Tool       `json:"editing"`
	Celebrating bool             `json:"celebrating"`
}

// View is the catalog as one user sees it: the latest snapshot of the
// collection, the search and category filters, the add and edit dialogs and
// the celebration flag. Snapshots replace the local list wholesale.
type View struct {
	mu          sync.Mutex
	tools       []types.Tool
	search      string
	category    types.Category
	addState    DialogState
	draft       types.ToolFields
	editState   DialogState
	editing     types.Tool
	celebrating bool
	closed      bool

	dispatcher  *Dispatcher
	celebration *common.Debouncer
	unsubscribe func()

	watchMu     sync.Mutex
	watchers    map[uint64]func()
	nextWatcher uint64
}

// NewView subscribes to the collection at cfg.Path. The initial snapshot is
// applied before NewView returns.
func NewView(ctx context.Context, collection repository.CollectionRepository, cfg ViewConfig) (*View, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.CelebrationDuration <= 0 {
		cfg.CelebrationDuration = DefaultCelebrationDuration
	}

	v := &View{
		category:    types.CategoryAll,
		dispatcher:  NewDispatcher(collection, cfg.Path),
		celebration: common.NewDebouncer(cfg.CelebrationDuration),
		watchers:    make(map[uint64]func()),
	}

	unsubscribe, err := collection.Subscribe(ctx, cfg.Path, v.onSnapshot)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Path, err)
	}
	v.unsubscribe = unsubscribe
	return v, nil
}

func (v *View) onSnapshot(snapshot types.Snapshot) {
	tools := make([]types.Tool, len(snapshot.Tools))
	copy(tools, snapshot.Tools)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.tools = tools
	v.mu.Unlock()

	v.changed()
}

// Tools returns the local list as last delivered, unfiltered.
func (v *View) Tools() []types.Tool {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]types.Tool, len(v.tools))
	copy(out, v.tools)
	return out
}

func (v *View) SetSearch(search string) {
	v.update(func() { v.search = search })
}

// SelectCategory sets the category filter. Unknown categories select All.
func (v *View) SelectCategory(category types.Category) {
	if !category.IsFilter() {
		category = types.CategoryAll
	}
	v.update(func() { v.category = category })
}

// ToggleAdd opens the add dialog, or closes it when already open. The draft
// survives a cancel.
func (v *View) ToggleAdd() {
	v.update(func() {
		if v.addState == DialogOpen {
			v.addState = DialogClosed
		} else {
			v.addState = DialogOpen
		}
	})
}

func (v *View) OpenAdd() {
	v.update(func() { v.addState = DialogOpen })
}

func (v *View) CancelAdd() {
	v.update(func() { v.addState = DialogClosed })
}

func (v *View) SetDraft(draft types.ToolFields) {
	v.update(func() { v.draft = draft })
}

// SubmitAdd dispatches the draft. When any field is empty nothing happens and
// false is returned. Otherwise the draft is cleared, the dialog closes and the
// celebration starts without waiting for the write.
func (v *View) SubmitAdd(ctx context.Context) bool {
	v.mu.Lock()
	if v.closed || !v.dispatcher.Add(ctx, v.draft) {
		v.mu.Unlock()
		return false
	}
	v.draft = types.ToolFields{}
	v.addState = DialogClosed
	v.startCelebration()
	v.mu.Unlock()

	v.changed()
	return true
}

// OpenEdit opens the edit dialog on a copy of the record currently in view.
func (v *View) OpenEdit(id string) bool {
	v.mu.Lock()
	found := false
	for _, t := range v.tools {
		if t.Id == id {
			v.editing = t
			v.editState = DialogOpen
			found = true
			break
		}
	}
	v.mu.Unlock()

	if found {
		v.changed()
	}
	return found
}

// SetEditing replaces the fields of the record being edited. The id is kept.
func (v *View) SetEditing(fields types.ToolFields) {
	v.update(func() {
		if v.editState != DialogOpen {
			return
		}
		v.editing = types.NewTool(v.editing.Id, fields)
	})
}

func (v *View) CancelEdit() {
	v.update(func() {
		v.editState = DialogClosed
		v.editing = types.Tool{}
	})
}

// SubmitEdit dispatches a full replace of the record being edited. Same guard
// as SubmitAdd; on acceptance the dialog closes and the celebration starts.
func (v *View) SubmitEdit(ctx context.Context) bool {
	v.mu.Lock()
	if v.closed || v.editState != DialogOpen || !v.dispatcher.Edit(ctx, v.editing) {
		v.mu.Unlock()
		return false
	}
	v.editState = DialogClosed
	v.editing = types.Tool{}
	v.startCelebration()
	v.mu.Unlock()

	v.changed()
	return true
}

// Delete dispatches removal of id. There is no confirmation and no undo; the
// record leaves the view when the next snapshot omits it.
func (v *View) Delete(ctx context.Context, id string) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	v.dispatcher.Delete(ctx, id)
}

func (v *View) Celebrating() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.celebrating
}

// startCelebration must be called with v.mu held.
func (v *View) startCelebration() {
	v.celebrating = true
	v.celebration.Call(celebrationKey, func() {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		v.celebrating = false
		v.mu.Unlock()
		v.changed()
	})
}

// Render returns the current render model.
func (v *View) Render() Render {
	v.mu.Lock()
	defer v.mu.Unlock()

	complete := make([]types.Tool, 0, len(v.tools))
	for _, t := range v.tools {
		if t.Complete() {
			complete = append(complete, t)
		}
	}

	return Render{
		Tools:       Filter(complete, v.search, v.category),
		Total:       len(complete),
		Search:      v.search,
		Category:    v.category,
		Categories:  types.FilterCategories(),
		AddDialog:   v.addState,
		Draft:       v.draft,
		EditDialog:  v.editState,
		Editing:     v.editing,
		Celebrating: v.celebrating,
	}
}

// Watch registers fn to run after every change to the render model. The
// returned func removes it.
func (v *View) Watch(fn func()) func() {
	v.watchMu.Lock()
	v.nextWatcher++
	id := v.nextWatcher
	v.watchers[id] = fn
	v.watchMu.Unlock()

	return func() {
		v.watchMu.Lock()
		delete(v.watchers, id)
		v.watchMu.Unlock()
	}
}

// Wait blocks until writes issued by this view have finished.
func (v *View) Wait() {
	v.dispatcher.Wait()
}

// Close unsubscribes from the collection, clears the celebration timer and
// drops watchers. In-flight writes are left to finish. Close is idempotent.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.celebrating = false
	v.mu.Unlock()

	if v.unsubscribe != nil {
		v.unsubscribe()
	}
	v.celebration.Stop()

	v.watchMu.Lock()
	v.watchers = make(map[uint64]func())
	v.watchMu.Unlock()

	log.Debug().Msg("catalog view closed")
}

func (v *View) update(fn func()) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	fn()
	v.mu.Unlock()
	v.changed()
}

func (v *View) changed() {
	v.watchMu.Lock()
	fns := make([]func(), 0, len(v.watchers))
	for _, fn := range v.watchers {
		fns = append(fns, fn)
	}
	v.watchMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
