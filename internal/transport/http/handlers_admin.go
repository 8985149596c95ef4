package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credence/internal/platform/middleware"
	"credence/internal/policy"
	id "credence/pkg/domain"
	"credence/pkg/platform/httputil"
)

// PolicyService is the capability surface exposed to operators. Grant and
// Revoke enforce the administering-capability rule themselves.
type PolicyService interface {
	Grant(ctx context.Context, actor id.SubjectID, capability policy.Capability, subject id.SubjectID) error
	Revoke(ctx context.Context, actor id.SubjectID, capability policy.Capability, subject id.SubjectID) error
	Has(capability policy.Capability, subject id.SubjectID) bool
	Require(capability policy.Capability, subject id.SubjectID) error
}

// KeyIssuer mints and revokes API keys for machine callers.
type KeyIssuer interface {
	Issue(subject id.SubjectID) (string, error)
	Revoke(keyID string)
}

// AdminHandler wires the operator endpoints: capability administration and
// API key lifecycle. Without these no issuer, minter, or verification
// provider could ever be enabled on a running instance.
type AdminHandler struct {
	policy PolicyService
	keys   KeyIssuer
	logger *slog.Logger
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/capabilities/grant", h.HandleGrant)
	r.Post("/admin/capabilities/revoke", h.HandleRevoke)
	r.Get("/admin/subjects/{subject}/capabilities/{capability}", h.HandleHas)
	r.Post("/admin/apikeys", h.HandleIssueKey)
	r.Delete("/admin/apikeys/{keyID}", h.HandleRevokeKey)
}

type capabilityRequest struct {
	Capability string `json:"capability"`
	Subject    string `json:"subject"`
}

// HandleGrant handles POST /admin/capabilities/grant.
func (h *AdminHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	h.handleCapability(w, r, h.policy.Grant, "granted")
}

// HandleRevoke handles POST /admin/capabilities/revoke.
func (h *AdminHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleCapability(w, r, h.policy.Revoke, "revoked")
}

func (h *AdminHandler) handleCapability(w http.ResponseWriter, r *http.Request,
	apply func(context.Context, id.SubjectID, policy.Capability, id.SubjectID) error, status string) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[capabilityRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	subject, err := id.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := apply(ctx, actor, policy.Capability(req.Capability), subject); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleHas handles GET /admin/subjects/{subject}/capabilities/{capability}.
func (h *AdminHandler) HandleHas(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	capability := policy.Capability(chi.URLParam(r, "capability"))
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"granted": h.policy.Has(capability, subject)})
}

type issueKeyRequest struct {
	Subject string `json:"subject"`
}

// HandleIssueKey handles POST /admin/apikeys. The plaintext key appears in
// the response exactly once and cannot be recovered later.
func (h *AdminHandler) HandleIssueKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.policy.Require(policy.CapRegistryAdmin, actor); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[issueKeyRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	subject, err := id.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	fullKey, err := h.keys.Issue(subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"api_key": fullKey})
}

// HandleRevokeKey handles DELETE /admin/apikeys/{keyID}.
func (h *AdminHandler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.policy.Require(policy.CapRegistryAdmin, actor); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.keys.Revoke(chi.URLParam(r, "keyID"))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
