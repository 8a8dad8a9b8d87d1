package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/Dosada05/ralli/realtime"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler accepts upgrades from the given origins. "*" allows any
// origin.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWs streams the changes of one race. Clients connect to
// /ws/races/{raceID} and narrow the stream with the table, event and filter
// query parameters, e.g. ?table=teams&event=UPDATE&filter=id=eq.<team id>.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	raceID, err := getIDFromURL(r, "raceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	q := r.URL.Query()
	filter, err := realtime.ParseFilter(q.Get("table"), q.Get("event"), q.Get("filter"))
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("race_id", raceID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, raceID, filter)
	select {
	case h.hub.Register <- client:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client connected", slog.String("race_id", raceID), slog.String("table", filter.Table))
}
