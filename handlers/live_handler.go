package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/services"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type LiveMessage struct {
	Type   string                     `json:"type"`
	Scores []*leaderboard.RankedScore `json:"scores,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

type LiveHandler struct {
	hub      *services.LiveHub
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts websocket upgrades from the given origins; "*" allows any.
func NewLiveHandler(hub *services.LiveHub, allowedOrigins []string) *LiveHandler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return &LiveHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// StreamTopScores pushes the top-n list over a websocket every time it changes.
func (h *LiveHandler) StreamTopScores(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a number")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.hub.Subscribe(ctx, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Could not upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)
	writePump(ctx, conn, sub)
}

// readPump discards client messages and cancels the stream once the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Live leaderboard read error: %v", err)
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *services.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case scores, ok := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				closeLive(conn, sub.Err())
				return
			}
			if err := conn.WriteJSON(LiveMessage{Type: "top_scores", Scores: scores}); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: keep connection alive
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func closeLive(conn *websocket.Conn, err error) {
	code, reason := websocket.CloseNormalClosure, ""
	if err != nil {
		if errors.Is(err, services.ErrTransient) {
			code = websocket.CloseTryAgainLater
		} else {
			code = websocket.CloseInternalServerErr
		}
		reason = err.Error()
		conn.WriteJSON(LiveMessage{Type: "error", Error: reason})
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
