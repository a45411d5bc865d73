package common

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	EventBusChannel = "toolshelf:events"

	eventBusRetryDelay = time.Second
)

type EventType string

const (
	EventCollectionChanged EventType = "collection.changed"
)

type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// CollectionChanged builds the event emitted after any write under path.
func CollectionChanged(path string) Event {
	return Event{Type: EventCollectionChanged, Data: map[string]any{"path": path}}
}

// Path returns the collection path carried by a collection event.
func (e Event) Path() string {
	path, _ := e.Data["path"].(string)
	return path
}

type handlerEntry struct {
	id uint64
	fn func(Event)
}

// EventBus fans events out to every replica through redis pub/sub. Without
// redis it dispatches in-process.
type EventBus struct {
	rdb       *RedisClient
	channel   string
	handlers  map[EventType][]handlerEntry
	nextId    uint64
	mu        sync.RWMutex
	ctx       context.Context
	ready     chan struct{}
	readyOnce sync.Once
}

func NewEventBus(ctx context.Context, rdb *RedisClient) *EventBus {
	eb := &EventBus{
		rdb:      rdb,
		channel:  EventBusChannel,
		handlers: make(map[EventType][]handlerEntry),
		ctx:      ctx,
		ready:    make(chan struct{}),
	}
	if rdb == nil {
		eb.markReady()
	}
	return eb
}

// On registers fn for events of type t and returns a func that removes it.
func (eb *EventBus) On(t EventType, fn func(Event)) func() {
	eb.mu.Lock()
	eb.nextId++
	id := eb.nextId
	eb.handlers[t] = append(eb.handlers[t], handlerEntry{id: id, fn: fn})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		entries := eb.handlers[t]
		for i, entry := range entries {
			if entry.id == id {
				eb.handlers[t] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (eb *EventBus) Emit(e Event) {
	if eb.rdb == nil {
		eb.dispatch(e)
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := eb.rdb.Publish(eb.ctx, eb.channel, data).Err(); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("eventbus publish failed")
	}
}

// Ready is closed once the bus receives events from redis.
func (eb *EventBus) Ready() <-chan struct{} {
	return eb.ready
}

func (eb *EventBus) markReady() {
	eb.readyOnce.Do(func() { close(eb.ready) })
}

func (eb *EventBus) dispatch(e Event) {
	eb.mu.RLock()
	entries := append([]handlerEntry(nil), eb.handlers[e.Type]...)
	eb.mu.RUnlock()
	for _, entry := range entries {
		entry.fn(e)
	}
}

func (eb *EventBus) Start() {
	if eb.rdb == nil {
		<-eb.ctx.Done()
		return
	}
	log.Info().Str("channel", eb.channel).Msg("eventbus started")
	eb.listen()
}

func (eb *EventBus) listen() {
	for {
		if eb.ctx.Err() != nil {
			return
		}
		msgs, errs := eb.rdb.Subscribe(eb.ctx, eb.channel)
		eb.recv(msgs, errs)

		select {
		case <-eb.ctx.Done():
			return
		case <-time.After(eventBusRetryDelay):
		}
	}
}

func (eb *EventBus) recv(msgs <-chan *redis.Message, errs <-chan error) {
	// Subscribe reports a failed subscription before returning
	select {
	case err := <-errs:
		log.Warn().Err(err).Str("channel", eb.channel).Msg("eventbus subscribe failed")
		return
	default:
		eb.markReady()
	}

	for {
		select {
		case <-eb.ctx.Done():
			return
		case err := <-errs:
			if eb.ctx.Err() == nil {
				log.Warn().Err(err).Str("channel", eb.channel).Msg("eventbus subscription lost")
			}
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var e Event
			if json.Unmarshal([]byte(msg.Payload), &e) == nil {
				eb.dispatch(e)
			}
		}
	}
}
