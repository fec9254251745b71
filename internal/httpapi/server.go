// Package httpapi is the operator HTTP surface: health, status, metrics,
// swagger docs and the inbound update endpoint.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status(ctx context.Context) types.StatusResponse
	Ready() bool
	Models(ctx context.Context) (types.ModelsResponse, error)
	// HandleUpdate routes an inbound message. A non-nil error means the
	// update was rejected; the response still carries the outcome.
	HandleUpdate(ctx context.Context, req types.UpdateRequest) (types.UpdateResponse, error)
	// Replies returns loopback replies for chatID; ok is false when replies
	// go to an external chat transport instead.
	Replies(chatID int64) (replies []types.Reply, ok bool)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(corsAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)
	r.Get("/models", h.models)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireToken)
		r.Post("/updates", h.postUpdate)
		r.Get("/replies/{chatID}", h.replies)
	})
	return r
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(authToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="inferd"`)
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlers struct{ svc Service }

// healthz godoc
// @Summary  Liveness check
// @Produce  plain
// @Success  200 {string} string "ok"
// @Router   /healthz [get]
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// readyz godoc
// @Summary  Readiness check, 200 only while the backend is ready
// @Produce  plain
// @Success  200 {string} string "ready"
// @Failure  503 {string} string "backend state"
// @Router   /readyz [get]
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(h.svc.Status(r.Context()).Backend.State))
}

// status godoc
// @Summary  Backend, queue and ledger status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// models godoc
// @Summary  Installed backend models with their fallback-chain position
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Failure  502 {object} types.ErrorResponse
// @Router   /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Models(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// postUpdate godoc
// @Summary  Submit a chat message
// @Description Routes the message like a chat update. Queued jobs answer through the chat transport.
// @Accept   json
// @Produce  json
// @Param    update body types.UpdateRequest true "message"
// @Success  200 {object} types.UpdateResponse "answered locally"
// @Success  202 {object} types.UpdateResponse "queued"
// @Failure  400 {object} types.ErrorResponse
// @Failure  401 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Security BearerAuth
// @Router   /v1/updates [post]
func (h *handlers) postUpdate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatID == 0 {
		writeJSONError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.Document == "" {
		writeJSONError(w, http.StatusBadRequest, "text or document is required")
		return
	}

	// Shutdown cancels routing work (page fetches) as well as client disconnects.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	resp, err := h.svc.HandleUpdate(ctx, req)
	if err != nil {
		observeUpdate(resp.Outcome)
		code := statusFor(err)
		switch code {
		case http.StatusTooManyRequests:
			IncrementBackpressure("queue_full")
		case http.StatusServiceUnavailable:
			IncrementBackpressure("shutting_down")
		}
		writeJSONError(w, code, err.Error())
		return
	}
	observeUpdate(resp.Outcome)
	code := http.StatusOK
	if resp.Outcome == "queued" {
		code = http.StatusAccepted
	}
	writeJSON(w, code, resp)
}

// replies godoc
// @Summary  Replies delivered to a chat through the loopback transport
// @Produce  json
// @Param    chatID path int true "chat id"
// @Success  200 {object} types.RepliesResponse
// @Failure  404 {object} types.ErrorResponse
// @Security BearerAuth
// @Router   /v1/replies/{chatID} [get]
func (h *handlers) replies(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "chat id must be an integer")
		return
	}
	replies, ok := h.svc.Replies(chatID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "replies are delivered through the chat transport")
		return
	}
	if replies == nil {
		replies = []types.Reply{}
	}
	writeJSON(w, http.StatusOK, types.RepliesResponse{Replies: replies})
}
