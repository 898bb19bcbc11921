package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// streamFrame is one message on /v1/stream.
type streamFrame struct {
	Event string        `json:"event"`
	Data  appdata.State `json:"data"`
}

// streamHandler upgrades to WebSocket and sends the current snapshot, then
// the latest snapshot after every applied change. Bursts of changes
// coalesce into one frame. Inbound messages are ignored.
func streamHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("stream: upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		updates := make(chan struct{}, 1)
		unsubscribe := store.Subscribe(func(appdata.State) {
			select {
			case updates <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(streamPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var (
			sent     bool
			lastSent uint64
		)
		send := func() error {
			st := store.Snapshot()
			if sent && st.Version == lastSent {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamFrame{Event: "state", Data: st}); err != nil {
				return err
			}
			sent, lastSent = true, st.Version
			return nil
		}

		if err := send(); err != nil {
			return
		}

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case <-updates:
				if err := send(); err != nil {
					logger.Debug("stream: write failed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
