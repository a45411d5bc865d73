package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	collectionChangedChannel = "collection_changed"

	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// CollectionPostgresRepository implements CollectionRepository on the tool
// table. A trigger issues pg_notify on every write, so writes from any client
// reach the listener here; bursts per path are debounced into one reload.
type CollectionPostgresRepository struct {
	db        *sql.DB
	listener  *pq.Listener
	debouncer *common.Debouncer
	notifier  *collectionNotifier
	cancel    context.CancelFunc
}

func NewCollectionPostgresRepository(ctx context.Context, backend *PostgresBackend, debounce time.Duration) (*CollectionPostgresRepository, error) {
	ctx, cancel := context.WithCancel(ctx)

	listener := pq.NewListener(backend.DSN(), listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("postgres listener event")
		}
	})
	if err := listener.Listen(collectionChangedChannel); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", collectionChangedChannel, err)
	}

	r := &CollectionPostgresRepository{
		db:        backend.DB(),
		listener:  listener,
		debouncer: common.NewDebouncer(debounce),
		cancel:    cancel,
	}
	r.notifier = newCollectionNotifier(ctx, r.Snapshot)

	go r.listen(ctx)
	return r, nil
}

func (r *CollectionPostgresRepository) listen(ctx context.Context) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-r.listener.Notify:
			if !ok {
				return
			}
			// nil means the connection was re-established and notifications may have been lost
			if n == nil {
				for _, path := range r.notifier.subscribedPaths() {
					r.schedule(path)
				}
				continue
			}
			r.schedule(n.Extra)
		case <-ticker.C:
			if err := r.listener.Ping(); err != nil {
				log.Warn().Err(err).Msg("postgres listener ping failed")
			}
		}
	}
}

func (r *CollectionPostgresRepository) schedule(path string) {
	r.debouncer.Call(path, func() {
		r.notifier.notify(path)
	})
}

func (r *CollectionPostgresRepository) Subscribe(ctx context.Context, path string, fn SnapshotListener) (func(), error) {
	return r.notifier.subscribe(ctx, path, fn), nil
}

func (r *CollectionPostgresRepository) Create(ctx context.Context, path string, fields types.ToolFields) (string, error) {
	id := common.GenerateToolID()

	query := `
		INSERT INTO tool (id, path, name, url, description, category)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, id, path, fields.Name, fields.Url, fields.Description, fields.Category); err != nil {
		return "", fmt.Errorf("failed to create tool: %w", err)
	}

	return id, nil
}

func (r *CollectionPostgresRepository) Update(ctx context.Context, path, id string, fields types.ToolFields) error {
	query := `
		UPDATE tool
		SET name = $3, url = $4, description = $5, category = $6, updated_at = CURRENT_TIMESTAMP
		WHERE path = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, path, id, fields.Name, fields.Url, fields.Description, fields.Category)
	if err != nil {
		return fmt.Errorf("failed to update tool: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &types.ErrToolNotFound{Path: path, Id: id}
	}
	return nil
}

func (r *CollectionPostgresRepository) Delete(ctx context.Context, path, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tool WHERE path = $1 AND id = $2`, path, id); err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	return nil
}

func (r *CollectionPostgresRepository) Snapshot(ctx context.Context, path string) (types.Snapshot, error) {
	query := `
		SELECT id, name, url, description, category
		FROM tool
		WHERE path = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, path)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to load tools: %w", err)
	}
	defer rows.Close()

	tools := []types.Tool{}
	for rows.Next() {
		var t types.Tool
		if err := rows.Scan(&t.Id, &t.Name, &t.Url, &t.Description, &t.Category); err != nil {
			return types.Snapshot{}, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return types.Snapshot{}, err
	}

	return types.Snapshot{Path: path, Tools: tools}, nil
}

func (r *CollectionPostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *CollectionPostgresRepository) Close() error {
	r.cancel()
	r.debouncer.Stop()
	return r.listener.Close()
}
