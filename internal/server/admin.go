package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/watchdog"
)

// AdminHandler exposes the watchdog's operations over authenticated HTTP.
type AdminHandler struct {
	logger   zerolog.Logger
	watchdog *watchdog.Watchdog
	token    string
}

// NewAdminHandler constructs the admin surface for a watchdog.
func NewAdminHandler(logger zerolog.Logger, w *watchdog.Watchdog, token string) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		watchdog: w,
		token:    token,
	}
}

// Router builds the admin router.
func (h *AdminHandler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.authMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/check", h.handleCheck)
		r.Post("/failover/{service}", h.handleFailover)
		r.Post("/revert", h.handleRevertAll)
		r.Post("/revert/{service}", h.handleRevert)
		r.Post("/gcp-url", h.handleRegisterOverride)
		r.Post("/digest", h.handleDigest)
	})

	return r
}

// authMiddleware rejects requests without the configured bearer token. An
// unset token rejects everything: the admin surface never runs open.
func (h *AdminHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			h.writeError(w, http.StatusServiceUnavailable, "admin token not configured")
			return
		}
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := h.watchdog.Status(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *AdminHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.watchdog.RunOnce(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc, err := h.watchdog.Status(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *AdminHandler) handleFailover(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	record, err := h.watchdog.ManualFailover(r.Context(), service)
	if err != nil {
		h.writeWatchdogError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *AdminHandler) handleRevertAll(w http.ResponseWriter, r *http.Request) {
	reverted, err := h.watchdog.ManualRevertAll(r.Context())
	if err != nil {
		if len(reverted) > 0 {
			h.writeJSON(w, http.StatusOK, map[string]any{"reverted": reverted, "error": err.Error()})
			return
		}
		h.writeWatchdogError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reverted": reverted})
}

func (h *AdminHandler) handleRevert(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := h.watchdog.ManualRevert(r.Context(), service); err != nil {
		h.writeWatchdogError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"reverted": service})
}

func (h *AdminHandler) handleRegisterOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Service string `json:"service"`
		URL     string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Service == "" || body.URL == "" {
		h.writeError(w, http.StatusBadRequest, "service and url are required")
		return
	}
	if err := h.watchdog.RegisterOverride(r.Context(), body.Service, body.URL); err != nil {
		h.writeWatchdogError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"service": body.Service, "url": body.URL})
}

func (h *AdminHandler) handleDigest(w http.ResponseWriter, r *http.Request) {
	if err := h.watchdog.SendDigest(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// writeWatchdogError maps typed watchdog errors onto HTTP statuses:
// unknown service 404, conflicts 409, everything else 500.
func (h *AdminHandler) writeWatchdogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, watchdog.ErrUnknownService):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, watchdog.ErrAlreadyDiverted),
		errors.Is(err, watchdog.ErrNotDiverted),
		errors.Is(err, watchdog.ErrDryRun):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("encode admin response failed")
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
