package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nimbusgate/core/internal/authsession"
	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/trust"
)

// AuthHandler serves the auth session surface: logout, session-wide logout,
// and token validation.
type AuthHandler struct {
	sessions *authsession.Service
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(sessions *authsession.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rawBearer returns the raw token from the Authorization header; the
// request has already passed TrustAuth on these routes.
func rawBearer(r *http.Request) (string, bool) {
	raw, err := trust.ExtractBearer(r.Header.Get("Authorization"))
	return raw, err == nil
}

// Logout blacklists the presented token for its remaining lifetime.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := rawBearer(r)
	if !ok {
		problem.Write(w, http.StatusUnauthorized, "Valid JWT token required", r.URL.Path)
		return
	}
	if err := h.sessions.Logout(r.Context(), raw); err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// LogoutAll blacklists every token for the authenticated subject.
// POST /auth/logout/all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := ctxutil.PrincipalFromContext(r.Context())
	if !ok {
		problem.Write(w, http.StatusUnauthorized, "Valid JWT token required", r.URL.Path)
		return
	}
	if err := h.sessions.LogoutAll(r.Context(), principal.Subject); err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "all sessions logged out"})
}

// validationResponse is the wire shape for both validate endpoints.
type validationResponse struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Username string `json:"username,omitempty"`
	IssuedAt int64  `json:"iat,omitempty"`
	Expires  int64  `json:"exp,omitempty"`
}

func toValidationResponse(v authsession.Validation) validationResponse {
	out := validationResponse{
		Valid:    v.Valid,
		Reason:   string(v.Reason),
		Subject:  v.Subject,
		Username: v.Username,
	}
	if !v.IssuedAt.IsZero() {
		out.IssuedAt = v.IssuedAt.Unix()
	}
	if !v.Expires.IsZero() {
		out.Expires = v.Expires.Unix()
	}
	return out
}

// Validate reports the validity of the presented bearer token.
// POST /auth/token/validate (behind TrustAuth, so reaching here means valid)
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	v := h.sessions.Validate(r.Context(), r.Header.Get("Authorization"))
	if !v.Valid {
		problem.Write(w, http.StatusUnauthorized, "Valid JWT token required", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, toValidationResponse(v))
}

// ValidatePublic validates a token carried in the request body rather than
// the Authorization header. Missing or malformed tokens are 400; tokens
// that fail verification are 401.
// POST /auth/token/validate/public
func (h *AuthHandler) ValidatePublic(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		problem.Write(w, http.StatusBadRequest, "token is required", r.URL.Path)
		return
	}

	v := h.sessions.Validate(r.Context(), "Bearer "+body.Token)
	if !v.Valid {
		if v.Reason == trust.ReasonMalformed || v.Reason == trust.ReasonMissing {
			problem.Write(w, http.StatusBadRequest, "malformed token", r.URL.Path)
			return
		}
		problem.Write(w, http.StatusUnauthorized, "invalid token", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, toValidationResponse(v))
}

// Refresh is intentionally unimplemented: the refresh contract is
// under-specified upstream, so the endpoint is reserved and answers 501.
// POST /auth/token/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, http.StatusNotImplemented, "token refresh is not implemented", r.URL.Path)
}
