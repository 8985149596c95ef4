package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credence/internal/identity"
	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	"credence/pkg/platform/httputil"
)

// IdentityService is the slice of the identity registry the HTTP layer uses.
type IdentityService interface {
	Register(ctx context.Context, subject id.SubjectID, commitment id.Commitment) error
	UpdateVerificationStatus(ctx context.Context, actor, subject id.SubjectID, kind identity.VerificationKind, value bool) error
	Deactivate(ctx context.Context, actor, subject id.SubjectID, reason string) error
	Get(ctx context.Context, subject id.SubjectID) (identity.Identity, error)
}

// TrustService exposes the gating oracle and manual adjustments.
type TrustService interface {
	GetScore(ctx context.Context, subject id.SubjectID) (int64, error)
	Adjust(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error
}

// IdentityHandler wires identity and trust endpoints.
type IdentityHandler struct {
	service IdentityService
	trust   TrustService
	logger  *slog.Logger
}

func (h *IdentityHandler) Register(r chi.Router) {
	r.Post("/identity/register", h.HandleRegister)
	r.Get("/identity/{subject}", h.HandleGet)
	r.Post("/identity/{subject}/deactivate", h.HandleDeactivate)
	r.Post("/identity/{subject}/verification", h.HandleUpdateVerification)
	r.Get("/trust/{subject}", h.HandleGetScore)
	r.Post("/trust/{subject}/adjust", h.HandleAdjustScore)
}

type registerRequest struct {
	Commitment string `json:"commitment"`
}

// HandleRegister handles POST /identity/register. The caller registers
// themselves; the commitment is consumed permanently.
func (h *IdentityHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[registerRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	commitment, err := id.ParseCommitment(req.Commitment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Register(ctx, subject, commitment); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "identity registered",
		"request_id", middleware.GetRequestID(ctx),
		"subject", subject.String(),
		"device", middleware.GetDevice(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"subject": subject.String()})
}

type identityResponse struct {
	Subject        string `json:"subject"`
	Commitment     string `json:"commitment"`
	Active         bool   `json:"active"`
	Level          int    `json:"level"`
	FaceVerified   bool   `json:"face_verified"`
	GovIDVerified  bool   `json:"gov_id_verified"`
	IncomeVerified bool   `json:"income_verified"`
	RegisteredAt   string `json:"registered_at"`
}

// HandleGet handles GET /identity/{subject}.
func (h *IdentityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	record, err := h.service.Get(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, identityResponse{
		Subject:        record.Subject.String(),
		Commitment:     record.Commitment.String(),
		Active:         record.Active,
		Level:          record.Level,
		FaceVerified:   record.FaceVerified,
		GovIDVerified:  record.GovIDVerified,
		IncomeVerified: record.IncomeVerified,
		RegisteredAt:   record.RegisteredAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

// HandleDeactivate handles POST /identity/{subject}/deactivate.
func (h *IdentityHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	req, ok := httputil.Decode[deactivateRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Deactivate(ctx, actor, subject, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type updateVerificationRequest struct {
	Kind  string `json:"kind"`
	Value bool   `json:"value"`
}

// HandleUpdateVerification handles POST /identity/{subject}/verification.
// Direct flag writes for registry writers; provider verdicts go through the
// verification results endpoint instead.
func (h *IdentityHandler) HandleUpdateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	req, ok := httputil.Decode[updateVerificationRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	err := h.service.UpdateVerificationStatus(ctx, actor, subject, identity.VerificationKind(req.Kind), req.Value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleGetScore handles GET /trust/{subject}.
func (h *IdentityHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	score, err := h.trust.GetScore(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"score": score})
}

type adjustScoreRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// HandleAdjustScore handles POST /trust/{subject}/adjust. Restricted to
// score writers by the trust service.
func (h *IdentityHandler) HandleAdjustScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	req, ok := httputil.Decode[adjustScoreRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.trust.Adjust(ctx, actor, subject, req.Delta, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}
