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

// VerificationService accepts provider verdicts.
type VerificationService interface {
	SubmitResult(ctx context.Context, subject id.SubjectID, kind identity.VerificationKind, success bool) error
}

// VerificationHandler wires the machine-facing verification results
// endpoint. Mounted behind API key auth, not bearer tokens.
type VerificationHandler struct {
	service VerificationService
	logger  *slog.Logger
}

func (h *VerificationHandler) Register(r chi.Router) {
	r.Post("/verification/results", h.HandleSubmitResult)
}

type verificationResultRequest struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Success bool   `json:"success"`
}

// HandleSubmitResult handles POST /verification/results.
func (h *VerificationHandler) HandleSubmitResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[verificationResultRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	subject, err := id.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SubmitResult(ctx, subject, identity.VerificationKind(req.Kind), req.Success); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "verification result accepted",
		"request_id", middleware.GetRequestID(ctx),
		"subject", subject.String(),
		"kind", req.Kind,
		"success", req.Success,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
