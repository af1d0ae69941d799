package server

import (
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"foodbridge/internal/engine/auth"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// registerStream pushes delivery snapshots over a websocket until the
// driver arrives, the delivery is canceled or the client goes away.
func registerStream(r chi.Router, basePath string, d deps) {
	r.Get(path.Join(basePath, "sessions/{id}/delivery/stream"), func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		ctx := req.Context()
		if _, err := d.sessionAccess(ctx, id, auth.PermDonationRead); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		first, updates, cancel, err := d.e.SubscribeDelivery(ctx, id)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer cancel()

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			d.auth.logger().Debug("stream: upgrade %s: %v", id, err)
			return
		}
		defer conn.Close()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(first); err != nil {
			return
		}
		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "delivery finished"))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			case <-closed:
				return
			case <-ctx.Done():
				return
			}
		}
	})
}
