package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WebsocketHandler streams a topic to websocket clients. It expects the topic in
// the {topic} route variable and optionally filters on ?reference_id=.
type WebsocketHandler struct {
	bus      *Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWebsocketHandler(bus *Bus, logger *slog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	topic, ok := ParseTopic(mux.Vars(req)["topic"])
	if !ok {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}
	referenceID := req.URL.Query().Get("reference_id")

	sub, err := h.bus.Subscribe(topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		sub.Close()
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go h.writeLoop(conn, sub, referenceID, closed)
}

func (h *WebsocketHandler) writeLoop(conn *websocket.Conn, sub *Subscription, referenceID string, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if !matchesReference(ev, referenceID) {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "topic", ev.Topic, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("websocket send failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func matchesReference(ev Event, referenceID string) bool {
	if referenceID == "" {
		return true
	}
	payload, ok := ev.Payload.(LogPayload)
	return ok && payload.ReferenceID == referenceID
}
