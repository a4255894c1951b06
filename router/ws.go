package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/whisper-darkly/coodo-backend/manager"
	"github.com/whisper-darkly/coodo-backend/middleware"
	"github.com/whisper-darkly/coodo-backend/todo"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer at this interval. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer (16 KB).
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The signed session cookie is the auth boundary; pages on other
	// origins cannot read it, so an origin allowlist adds nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// joinList subscribes the caller to a list over a websocket. The join and
// the membership write happen before the upgrade: both can fail, and after
// the upgrade no ordinary HTTP response can be written any more.
func joinList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.ContextSession(r)
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "establish a session first")
			return
		}
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid list id")
			return
		}

		sub, err := deps.Registry.Join(r.Context(), id, sess.User)
		if err != nil {
			slog.Error("router: join todo list", "list", id, "user", sess.User.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "joining todo list failed")
			return
		}

		info := deps.Registry.FillInfos(r.Context(), []todo.TodoListInfo{{ID: id}})[0]
		if sess.JoinList(info) {
			if _, err := deps.Sessions.Save(r.Context(), w, middleware.ContextSessionID(r), sess); err != nil {
				sub.Leave(r.Context())
				slog.Error("router: record membership", "list", id, "error", err)
				writeError(w, http.StatusInternalServerError, "recording membership failed")
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written its own error response.
			sub.Leave(r.Context())
			slog.Debug("router: websocket upgrade", "list", id, "error", err)
			return
		}

		slog.Info("router: websocket connected", "list", id, "user", sess.User.ID)
		serveList(conn, sub)
		slog.Info("router: websocket closed", "list", id, "user", sess.User.ID)
	}
}

// serveList multiplexes one connection: inbound command frames, outbound
// snapshots and the eviction signal. It returns once the connection is
// finished either way; the ordinary paths send the user's goodbye via
// Leave, the eviction path must not, since the user's presence slot already
// belongs to the successor connection.
func serveList(conn *websocket.Conn, sub *manager.Subscription) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound frames have no channel form in the gorilla API, so pump them
	// into one. quit keeps the pump from leaking when this loop returns
	// while the pump is mid-send.
	frames := make(chan []byte)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("router: websocket read", "user", sub.User().ID, "error", err)
				}
				return
			}
			select {
			case frames <- data:
			case <-quit:
				return
			}
		}
	}()

	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case data, ok := <-frames:
			if !ok {
				// Client closed or the read failed.
				sub.Leave(context.Background())
				return
			}
			cmd, err := todo.ParseCommand(data)
			if err != nil {
				// A malformed frame must not kill the session; drop it.
				slog.Debug("router: dropping malformed command", "user", sub.User().ID, "error", err)
				continue
			}
			if err := sub.Send(context.Background(), cmd); err != nil {
				sub.Leave(context.Background())
				return
			}

		case <-sub.Changed():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(sub.Latest()); err != nil {
				sub.Leave(context.Background())
				return
			}

		case <-sub.Evicted():
			// A newer connection took this user's place.
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session superseded"))
			return

		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.Leave(context.Background())
				return
			}
		}
	}
}
