package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"adherence-service/internal/app"
	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
)

// WSHandler answers progressive score queries over a websocket.
type WSHandler struct {
	progress *app.ProgressService
	upgrader websocket.Upgrader
}

func NewWSHandler(progress *app.ProgressService) *WSHandler {
	return &WSHandler{
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type datePayload struct {
	Date string `json:"date"`
}

type connectedPayload struct {
	UserID string `json:"userId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and serves score and history queries for one user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	log := logger.FromContext(r.Context()).With("component", "ws", "user_id", userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// Single writer; gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "connected", Payload: connectedPayload{UserID: userID}}

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		select {
		case send <- h.handle(r, userID, inbound):
		case <-writerDone:
			break read
		}
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) handle(r *http.Request, userID string, inbound inboundMessage) outboundMessage[any] {
	if inbound.Type != "score" && inbound.Type != "history" {
		return errorMessage("unsupported message type")
	}
	var payload datePayload
	if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
		return errorMessage("invalid " + inbound.Type + " payload")
	}
	date, err := domain.ParseDate(payload.Date)
	if err != nil {
		return errorMessage(err.Error())
	}

	if inbound.Type == "history" {
		days, err := h.progress.History(r.Context(), userID, date)
		if err != nil {
			return failure(r, err)
		}
		return outboundMessage[any]{Type: "history", Payload: days}
	}
	rec, err := h.progress.ProgressiveScore(r.Context(), userID, date)
	if err != nil {
		return failure(r, err)
	}
	return outboundMessage[any]{Type: "score", Payload: rec}
}

func failure(r *http.Request, err error) outboundMessage[any] {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("ws request failed", "error", err)
	}
	return errorMessage(message)
}

func errorMessage(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
