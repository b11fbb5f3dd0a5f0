package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gibbonas/MemAgent/internal/observability"
	"github.com/gibbonas/MemAgent/internal/team"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API carries no cookies; origin enforcement belongs to the proxy in
	// front of it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsInbound is one client frame on the chat socket. Either Message or
// Selection must be present; PhotosToken refreshes the per-event credential.
type wsInbound struct {
	Message     string          `json:"message"`
	Selection   *team.Selection `json:"selection,omitempty"`
	PhotosToken string          `json:"photos_token,omitempty"`
}

// handleWebSocket serves a chat connection bound to one session. Frames are
// processed strictly in arrival order; the reply envelope for each frame is
// written back before the next is read.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Logger().Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx := observability.WithSession(r.Context(), sessionID, userID)
	log := observability.LoggerFromContext(ctx)
	log.Info("websocket connected")

	var writeMu sync.Mutex
	writeEnvelope := func(env team.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(env)
	}

	token := photoToken(r)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", slog.Any("error", err))
			} else {
				log.Info("websocket disconnected")
			}
			return
		}
		if t := strings.TrimSpace(in.PhotosToken); t != "" {
			token = t
		}

		env := s.orch.Handle(ctx, sessionID, userID,
			team.Input{Text: in.Message, Selection: in.Selection}, s.collaborators(token))
		if err := writeEnvelope(env); err != nil {
			log.Warn("websocket write failed", slog.Any("error", err))
			return
		}
	}
}
