package catalog

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

// Dispatcher turns add/edit/delete intents into collection writes. Writes are
// fire-and-forget: the call returns as soon as the guard passes, the write
// runs in the background and its failure is only logged. The next snapshot
// is the only feedback.
type Dispatcher struct {
	collection repository.CollectionRepository
	path       string
	wg         sync.WaitGroup
}

func NewDispatcher(collection repository.CollectionRepository, path string) *Dispatcher {
	return &Dispatcher{collection: collection, path: path}
}

// Add creates a record from draft if every field is set and the category is
// storable. Returns false and does nothing otherwise.
func (d *Dispatcher) Add(ctx context.Context, draft types.ToolFields) bool {
	if types.ValidateFields(draft) != nil {
		return false
	}

	d.dispatch(ctx, "create", "", func(ctx context.Context) error {
		id, err := d.collection.Create(ctx, d.path, draft)
		if err == nil {
			log.Debug().Str("path", d.path).Str("id", id).Msg("tool created")
		}
		return err
	})
	return true
}

// Edit replaces all four fields of the record with tool.Id. Same guard as Add.
func (d *Dispatcher) Edit(ctx context.Context, tool types.Tool) bool {
	if tool.Id == "" || types.ValidateFields(tool.Fields()) != nil {
		return false
	}

	fields := tool.Fields()
	d.dispatch(ctx, "update", tool.Id, func(ctx context.Context) error {
		return d.collection.Update(ctx, d.path, tool.Id, fields)
	})
	return true
}

// Delete removes the record unconditionally.
func (d *Dispatcher) Delete(ctx context.Context, id string) {
	d.dispatch(ctx, "delete", id, func(ctx context.Context) error {
		return d.collection.Delete(ctx, d.path, id)
	})
}

// Wait blocks until every write issued so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, op, id string, write func(context.Context) error) {
	// writes outlive the request or view that issued them
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := write(ctx); err != nil {
			log.Warn().
				Err(err).
				Str("op", op).
				Str("path", d.path).
				Str("id", id).
				Msg("collection write failed")
		}
	}()
}
