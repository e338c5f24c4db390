package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/utrack/statlens/internal/capture"
	"github.com/utrack/statlens/internal/model"
	"github.com/utrack/statlens/internal/realtime"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.uber.org/zap"
)

// Controller is the part of the real-time controller exposed over HTTP.
type Controller interface {
	Snapshot() model.Snapshot
	Status() realtime.Status
	SetGranularity(g model.Granularity) error
}

// Handler exposes the real-time buffer and watch sessions over HTTP.
type Handler struct {
	controller    Controller
	registry      *capture.Registry
	gatherer      prometheus.Gatherer
	logger        *zap.Logger
	sessionBuffer int
	upgrader      websocket.Upgrader
}

func NewHandler(controller Controller, registry *capture.Registry, gatherer prometheus.Gatherer, sessionBuffer int, logger *zap.Logger) *Handler {
	return &Handler{
		controller:    controller,
		registry:      registry,
		gatherer:      gatherer,
		logger:        logger,
		sessionBuffer: sessionBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers HTTP routes for the API server.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/ui", h.handleUI).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if h.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/v1/realtime").Subrouter()
	api.HandleFunc("/samples", h.handleSamples).Methods(http.MethodGet)
	api.HandleFunc("/granularity", h.handleGetGranularity).Methods(http.MethodGet)
	api.HandleFunc("/granularity", h.handleSetGranularity).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/otlp", h.handleOTLP).Methods(http.MethodGet)
	api.HandleFunc("/watch", h.handleWatch).Methods(http.MethodPost)
	api.HandleFunc("/ws", h.handleWebsocket).Methods(http.MethodGet)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleSamples(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) handleGetGranularity(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *Handler) handleSetGranularity(w http.ResponseWriter, r *http.Request) {
	var req GranularityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	g := model.Granularity(req.Granularity)
	if !g.Valid() {
		h.writeErr(w, http.StatusBadRequest, fmt.Sprintf("granularity must be one of %v", model.Granularities()))
		return
	}

	if err := h.controller.SetGranularity(g); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, model.ErrInvalidGranularity):
			status = http.StatusBadRequest
		case errors.Is(err, realtime.ErrClosed), errors.Is(err, realtime.ErrNotStarted):
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("failed to change granularity", zap.Error(err), zap.Int("granularity_minutes", int(g)))
		h.writeErr(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *Handler) handleOTLP(w http.ResponseWriter, _ *http.Request) {
	marshaler := &pmetric.JSONMarshaler{}
	body, err := marshaler.MarshalMetrics(model.BuildMetrics(h.controller.Snapshot()))
	if err != nil {
		h.writeErr(w, http.StatusInternalServerError, "failed to encode metrics")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req WatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	filter := capture.NewFilter(req.Types...)
	session, err := h.registry.Register(ctx, capture.RegisterRequest{
		Filter:     filter,
		MaxEvents:  req.MaxEvents,
		BufferSize: h.sessionBuffer,
	})
	if err != nil {
		h.writeSessionErr(w, err)
		return
	}
	defer h.registry.Deregister(session.ID())

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeErr(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	end := func() {
		_ = enc.Encode(model.StreamEnd{
			Type:      "end",
			SessionID: session.ID(),
			Sent:      session.SentEvents(),
			Dropped:   session.DroppedEvents(),
		})
		flusher.Flush()
	}

	if filter.Accepts(model.EnvelopeSnapshot) {
		if err := enc.Encode(h.initialEnvelope(session)); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			end()
			return
		case envelope, ok := <-session.Events():
			if !ok {
				end()
				return
			}
			if err := enc.Encode(envelope); err != nil {
				h.logger.Debug("failed to stream envelope", zap.Error(err), zap.String("session_id", session.ID()))
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) initialEnvelope(session *capture.Session) model.Envelope {
	return model.Envelope{
		SessionID: session.ID(),
		Type:      model.EnvelopeSnapshot,
		EmittedAt: time.Now().UTC(),
		Payload:   h.controller.Snapshot(),
	}
}

func validateRequest(req WatchRequest) error {
	if req.MaxEvents < 0 {
		return errors.New("max_events must be >= 0")
	}
	if req.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be >= 0")
	}
	for _, t := range req.Types {
		if t != model.EnvelopeSnapshot && t != model.EnvelopeNotification {
			return fmt.Errorf("unknown envelope type %q", t)
		}
	}
	return nil
}

func (h *Handler) writeSessionErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, capture.ErrSessionLimitReached) {
		status = http.StatusTooManyRequests
	}
	h.writeErr(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeErr(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, StreamError{Error: message})
}
