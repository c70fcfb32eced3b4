package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/platform/auth"
)

// Audience categories callers may address.
const (
	CategoryAll     = "All"
	CategoryFoodies = "Foodies"
	CategoryVendors = "Vendors"
	CategoryDrivers = "Drivers"
)

// RolesForCategory maps a caller-declared audience category to role cohorts.
func RolesForCategory(category string) ([]string, bool) {
	switch strings.TrimSpace(category) {
	case CategoryAll:
		return []string{contracts.RoleRegularUser, contracts.RoleVendor, contracts.RoleDriver}, true
	case CategoryFoodies:
		return []string{contracts.RoleRegularUser}, true
	case CategoryVendors:
		return []string{contracts.RoleVendor}, true
	case CategoryDrivers:
		return []string{contracts.RoleDriver}, true
	default:
		return nil, false
	}
}

type Broadcaster interface {
	SendAnnouncement(ctx context.Context, roles []string, title, body string) (int, error)
}

// Handler exposes the ad-hoc broadcast endpoint. Only the single configured
// administrator address may use it.
type Handler struct {
	Tokens     auth.Manager
	AdminEmail string
	Broadcast  Broadcaster
	Log        zerolog.Logger
}

func NewHandler(tokens auth.Manager, adminEmail string, broadcaster Broadcaster, log zerolog.Logger) *Handler {
	return &Handler{
		Tokens:     tokens,
		AdminEmail: adminEmail,
		Broadcast:  broadcaster,
		Log:        log,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/notify", h.handleNotify)
	return r
}

type notifyRequest struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

type notifyResponse struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	claims, err := h.Tokens.Parse(token)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !strings.EqualFold(claims.Email, h.AdminEmail) {
		h.Log.Warn().Str("email", claims.Email).Str("path", r.URL.Path).Msg("broadcast attempt by non-administrator")
		h.writeError(w, http.StatusForbidden, "not authorized to broadcast")
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		h.writeError(w, http.StatusBadRequest, "title and message are required")
		return
	}
	roles, ok := RolesForCategory(req.Category)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	sent, err := h.Broadcast.SendAnnouncement(r.Context(), roles, req.Title, req.Message)
	if err != nil {
		h.Log.Error().Err(err).Str("category", req.Category).Msg("admin broadcast failed")
		h.writeError(w, http.StatusInternalServerError, "broadcast delivery failed")
		return
	}

	h.writeJSON(w, http.StatusOK, notifyResponse{Success: true, Sent: sent})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
