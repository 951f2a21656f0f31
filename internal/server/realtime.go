package server

import (
	"net/http"

	log "log/slog"

	"github.com/gofiber/websocket/v2"
	gws "github.com/gorilla/websocket"
)

const realtimeURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01"

// handleRealtime bridges a client WebSocket to the OpenAI realtime API,
// copying frames in both directions until either side goes away.
func (s *Server) handleRealtime(conn *websocket.Conn) {
	defer conn.Close()

	if s.apiKey == "" {
		conn.WriteMessage(gws.CloseMessage,
			gws.FormatCloseMessage(gws.ClosePolicyViolation, "API key not configured"))
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	upstream, _, err := gws.DefaultDialer.Dial(realtimeURL, header)
	if err != nil {
		log.Error("Realtime dial failed", "err", err)
		conn.WriteMessage(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseInternalServerErr, "upstream unavailable"))
		return
	}
	defer upstream.Close()

	log.Info("Realtime session bridged")

	errc := make(chan error, 2)

	go func() {
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			if err := upstream.WriteMessage(mt, msg); err != nil {
				errc <- err
				return
			}
		}
	}()

	go func() {
		for {
			mt, msg, err := upstream.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				errc <- err
				return
			}
		}
	}()

	err = <-errc
	log.Debug("Realtime session closed", "err", err)
}
