package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/notification"
)

// NotificationHandler serves the notification CRUD surface.
type NotificationHandler struct {
	svc *notification.Service
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// NotificationDTO is the wire shape of a notification.
type NotificationDTO struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	ActionURL string            `json:"actionUrl,omitempty"`
	Priority  int               `json:"priority"`
	Read      bool              `json:"read"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
	Archived  bool              `json:"archived"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toDTO(n notification.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Type:      string(n.Type),
		Title:     n.Title,
		Content:   n.Content,
		ActionURL: n.ActionURL,
		Priority:  n.Priority,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		Archived:  n.Archived,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func toDTOs(ns []notification.Notification) []NotificationDTO {
	out := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		out[i] = toDTO(n)
	}
	return out
}

// pageResponse is the paginated list envelope.
type pageResponse struct {
	Items []NotificationDTO `json:"items"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
	Total int               `json:"total"`
}

// Create accepts a notification request, validates it, and fans delivery
// out through the producer.
// POST /api/v1/notifications
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req notification.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	req.CorrelationID = ctxutil.CorrelationIDFromContext(r.Context())

	created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(created))
}

// principalSubject resolves the acting user: the authenticated principal,
// with an explicit userId query parameter honored for service-to-service
// calls carrying no end-user token.
func principalSubject(r *http.Request) string {
	if principal, ok := ctxutil.PrincipalFromContext(r.Context()); ok && principal.Subject != "" {
		return principal.Subject
	}
	return r.URL.Query().Get("userId")
}

// List returns a page of the user's notifications.
// GET /api/v1/notifications?userId&page&size
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := principalSubject(r)
	if owner == "" {
		problem.Write(w, http.StatusBadRequest, "userId is required", r.URL.Path)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	params := domain.ListParams{Page: page, PageSize: size}

	items, total, err := h.svc.List(r.Context(), owner, params)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Items: toDTOs(items),
		Page:  params.Page,
		Size:  params.Limit(),
		Total: total,
	})
}

// Unread returns the user's unread notifications.
// GET /api/v1/notifications/unread
func (h *NotificationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	owner := principalSubject(r)
	if owner == "" {
		problem.Write(w, http.StatusBadRequest, "userId is required", r.URL.Path)
		return
	}
	items, err := h.svc.Unread(r.Context(), owner)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(items))
}

// UnreadCount returns the user's unread count.
// GET /api/v1/notifications/unread/count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	owner := principalSubject(r)
	if owner == "" {
		problem.Write(w, http.StatusBadRequest, "userId is required", r.URL.Path)
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), owner)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead marks a notification read, enforcing ownership.
// PATCH /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), principalSubject(r), chi.URLParam(r, "id"))
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(n))
}

// Archive archives a notification, enforcing ownership.
// PATCH /api/v1/notifications/{id}/archive
func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Archive(r.Context(), principalSubject(r), chi.URLParam(r, "id"))
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(n))
}

// Delete removes a notification, enforcing ownership.
// DELETE /api/v1/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), principalSubject(r), chi.URLParam(r, "id")); err != nil {
		problem.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
