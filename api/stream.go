package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

type updateBroker struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *updateBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

func (b *updateBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *updateBroker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// close ends every subscription. Later subscribers get a closed channel.
func (b *updateBroker) close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for ch := range b.subs {
			close(ch)
			delete(b.subs, ch)
		}
	}
	b.mu.Unlock()
}

func (b *updateBroker) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// streamBoard pushes the board view whenever the session's engine changes it. The stream
// ends with a signed-out event when the session is revoked.
func (s *Server) streamBoard(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	ctx := c.Request().Context()
	if _, err := ws.BoardView(ctx); err != nil {
		return s.fail(c, ws, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)

	ch := ws.broker.subscribe()
	defer ws.broker.unsubscribe(ch)
	for {
		data, err := sonic.Marshal(ws.Board.View())
		if err != nil {
			s.logger.WithError(err).Error("encode board view")
			return err
		}
		if err := writeEvent(c.Response(), "board", data); err != nil {
			return nil
		}
		flusher.Flush()
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-ch:
			if !open {
				_ = writeEvent(c.Response(), "signed-out", []byte(`{"redirect":"/login"}`))
				flusher.Flush()
				return nil
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data []byte) error {
	if _, err := w.Write([]byte("event: " + name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
