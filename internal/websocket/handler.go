package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients. originPatterns follows coder/websocket's
// AcceptOptions; a "*" entry accepts any origin.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	opts := &ws.AcceptOptions{}
	for _, p := range originPatterns {
		if p == "*" {
			opts.InsecureSkipVerify = true
			break
		}
		opts.OriginPatterns = append(opts.OriginPatterns, hostPattern(p))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept", "error", err, "remote", r.RemoteAddr)
			return
		}

		NewClient(hub, conn, logger.With("remote", r.RemoteAddr)).Run(r.Context())
	}
}

// hostPattern strips the scheme: coder/websocket matches patterns against
// the origin's host.
func hostPattern(origin string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if len(origin) > len(scheme) && origin[:len(scheme)] == scheme {
			return origin[len(scheme):]
		}
	}
	return origin
}
