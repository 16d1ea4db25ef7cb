package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mockdeck/mockdeck/pkg/broadcast"
)

func (a *API) handleStreamExchanges(w http.ResponseWriter, r *http.Request) {
	stream(a, w, r, "exchanges", a.src.SubscribeToNetworkExchanges)
}

func (a *API) handleStreamRecordings(w http.ResponseWriter, r *http.Request) {
	stream(a, w, r, "recordings", a.src.SubscribeToRecordedExchanges)
}

func (a *API) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	stream(a, w, r, "logs", a.src.SubscribeToLogEvents)
}

// stream upgrades the request and writes every value of a fresh subscription
// as one JSON text frame until either side goes away.
func stream[T any](a *API, w http.ResponseWriter, r *http.Request, name string, subscribe func() *broadcast.Subscription[T]) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.log.Warn("websocket upgrade failed", "stream", name, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// the client never sends; CloseRead cancels ctx once it disconnects
	ctx := conn.CloseRead(r.Context())

	sub := subscribe()
	defer sub.Close()

	a.log.Debug("stream opened", "stream", name, "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			a.log.Debug("stream closed by client", "stream", name, "remote", r.RemoteAddr)
			return
		case v, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream completed")
				return
			}
			if err := a.write(ctx, conn, v); err != nil {
				if !errors.Is(err, context.Canceled) {
					a.log.Warn("stream write failed", "stream", name, "error", err)
				}
				return
			}
		}
	}
}

func (a *API) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, a.writeLimit)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
