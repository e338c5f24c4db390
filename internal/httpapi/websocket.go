package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/utrack/statlens/internal/capture"
	"github.com/utrack/statlens/internal/model"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleWebsocket serves the same envelopes as the NDJSON watch over a websocket.
// Envelope types are selected with ?types=snapshot,notification.
func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var types []model.EnvelopeType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, model.EnvelopeType(strings.TrimSpace(t)))
		}
	}
	if err := validateRequest(WatchRequest{Types: types}); err != nil {
		h.writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	filter := capture.NewFilter(types...)
	session, err := h.registry.Register(ctx, capture.RegisterRequest{
		Filter:     filter,
		BufferSize: h.sessionBuffer,
	})
	if err != nil {
		h.writeSessionErr(w, err)
		return
	}
	defer h.registry.Deregister(session.ID())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if filter.Accepts(model.EnvelopeSnapshot) {
		if err := write(h.initialEnvelope(session)); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case envelope, ok := <-session.Events():
			if !ok {
				return
			}
			if err := write(envelope); err != nil {
				h.logger.Debug("failed to write websocket envelope", zap.Error(err), zap.String("session_id", session.ID()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
