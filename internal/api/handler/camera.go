package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/relay"
)

// upgrader accepts any origin: the service runs on a trusted LAN and the
// phone camera page is served from a different host than the API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewCameraSendHandler returns an http.HandlerFunc for GET /ws/camera/send.
// The connecting client becomes the active frame sender; each message it
// sends is fanned out to all viewers.
func NewCameraSendHandler(b *relay.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("camera sender upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}

		b.SetSender(conn)
		defer func() {
			b.ClearSender(conn)
			conn.Close()
		}()
		slog.Info("camera sender connected", "remote_addr", r.RemoteAddr)

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				slog.Info("camera sender disconnected", "remote_addr", r.RemoteAddr)
				return
			}
			b.Broadcast(messageType, data)
		}
	}
}

// NewCameraViewHandler returns an http.HandlerFunc for GET /ws/camera/view.
// The connection receives every frame relayed from the active sender.
func NewCameraViewHandler(b *relay.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("camera viewer upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}

		b.AddViewer(conn)
		defer func() {
			b.RemoveViewer(conn)
			conn.Close()
		}()
		slog.Info("camera viewer connected", "remote_addr", r.RemoteAddr)

		// Viewers only receive; the read loop just detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				slog.Info("camera viewer disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	}
}

// NewCameraStatusHandler returns an http.HandlerFunc for GET /api/v1/camera/status.
func NewCameraStatusHandler(b *relay.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderConnected, viewers := b.Status()
		response.JSON(w, map[string]any{
			"sender_connected": senderConnected,
			"viewers":          viewers,
		})
	}
}
