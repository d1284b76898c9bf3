// Package handler exposes the chat gateway webhook and operational endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hostel-agent/internal/breaker"
	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
	"hostel-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	secretHeader      = "X-Webhook-Secret"
	maxBodyBytes      = 64 << 10
)

// MessageRouter handles one inbound chat message.
type MessageRouter interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage) (usecase.Reply, error)
	Reset(key string) bool
}

// Breakers exposes circuit breaker status and manual reset.
type Breakers interface {
	Status() []breaker.Status
	Reset(id string) bool
}

type Handler struct {
	router   MessageRouter
	breakers Breakers
	metrics  http.Handler
	secret   string
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithBreakers mounts the breaker status and reset routes.
func WithBreakers(b Breakers) Option {
	return func(h *Handler) { h.breakers = b }
}

// WithMetricsHandler mounts m at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithWebhookSecret requires X-Webhook-Secret on inbound webhooks.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) { h.secret = secret }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(router MessageRouter, opts ...Option) (*Handler, error) {
	if router == nil {
		return nil, errors.New("handler: message router must not be nil")
	}
	h := &Handler{router: router, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type inboundRequest struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	PushName  string    `json:"pushName"`
	IsGroup   bool      `json:"isGroup"`
	Timestamp time.Time `json:"timestamp"`
}

type webhookResponse struct {
	Route    string   `json:"route"`
	Language string   `json:"language,omitempty"`
	Replies  []string `json:"replies"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Routes builds the HTTP router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.correlation)

	r.Post("/webhook", h.handleWebhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.breakers != nil {
		r.Get("/breakers", h.handleBreakers)
		r.Post("/breakers/{id}/reset", h.handleBreakerReset)
	}
	r.Delete("/conversations/{key}", h.handleConversationReset)
	return r
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(secretHeader) != h.secret {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHORIZED"})
		return
	}

	var req inboundRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "invalid request body"})
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	reply, err := h.router.HandleMessage(r.Context(), domain.InboundMessage{
		From:      req.From,
		Text:      req.Text,
		PushName:  req.PushName,
		IsGroup:   req.IsGroup,
		Timestamp: ts,
	})
	if err != nil {
		status, code := mapError(err)
		h.logger.Error("webhook failed",
			"correlation_id", w.Header().Get(correlationHeader),
			"status", status,
			"err", err,
		)
		writeJSON(w, status, errorResponse{Error: code})
		return
	}

	replies := reply.Messages
	if replies == nil {
		replies = []string{}
	}
	writeJSON(w, http.StatusOK, webhookResponse{Route: reply.Route, Language: string(reply.Language), Replies: replies})
}

func (h *Handler) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.breakers.Status())
}

func (h *Handler) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.breakers.Reset(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Message: "unknown breaker " + id})
		return
	}
	h.logger.Info("breaker reset via api", "provider", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConversationReset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.router.Reset(key) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Message: "no active conversation"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// correlation echoes the caller's correlation id or assigns a new one.
func (h *Handler) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

func mapError(err error) (int, string) {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch uerr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(uerr.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(uerr.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
