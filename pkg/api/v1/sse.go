package apiv1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// startSSE writes the event-stream headers and flushes them.
func startSSE(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

// writeSSE writes one event with a JSON payload.
func writeSSE(c echo.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

func writeHeartbeat(c echo.Context) error {
	if _, err := fmt.Fprint(c.Response(), ": ping\n\n"); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// latest is a one-slot mailbox where a newer value replaces an unread one.
type latest[T any] struct {
	ch chan T
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan T, 1)}
}

func (l *latest[T]) put(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
			select {
			case <-l.ch:
			default:
			}
		}
	}
}
