package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Session is the per-connection runtime behind a client.
type Session interface {
	HandleFrame(ctx context.Context, data []byte)
	Close()
}

// OpenFunc starts the session for a new connection. userID is 0 for a
// connection that has not authenticated yet.
type OpenFunc func(ctx context.Context, c *Client, userID int64, deviceID string) Session

// Identify resolves the user and device of an upgrade request.
type Identify func(r *http.Request) (userID int64, deviceID string, ok bool)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients, each driving its own session.
func HandleWebSocket(hub *Hub, identify Identify, open OpenFunc, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, deviceID, ok := identify(r)
		if !ok {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: allowedOrigins,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, logger)
		client.SetUser(userID)

		sess := open(r.Context(), client, userID, deviceID)
		defer sess.Close()

		client.Run(r.Context(), sess.HandleFrame)
		conn.Close(ws.StatusNormalClosure, "")
	}
}
