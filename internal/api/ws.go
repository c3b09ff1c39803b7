// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Roughriver74/bitrix-dash/internal/logging"
	"github.com/Roughriver74/bitrix-dash/internal/stream"
)

// writeWait bounds every WebSocket write.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware at the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DashboardWS serves GET /api/v1/dashboard/ws: the streaming protocol over
// a WebSocket for clients behind proxies that buffer SSE.
func (h *Handler) DashboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.runStream(r, stream.NewEmitter(&wsSink{conn: conn}))

	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// wsSink writes each frame as one WebSocket text message.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(frame stream.Frame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}
