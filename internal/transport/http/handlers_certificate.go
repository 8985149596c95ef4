package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/certificate"
	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	"credence/pkg/platform/httputil"
)

// CertificateService is the slice of the certificate ledger the HTTP layer
// uses.
type CertificateService interface {
	Issue(ctx context.Context, issuer, holder id.SubjectID, certType, metadataURI string, validityPeriod time.Duration, proofHash string, requiredTrustScore int64) (id.CertificateID, error)
	Revoke(ctx context.Context, actor id.SubjectID, certID id.CertificateID, reason string) error
	Migrate(ctx context.Context, actor id.SubjectID, certID id.CertificateID, newHolder id.SubjectID, migrationProof string) error
	Transfer(ctx context.Context, actor id.SubjectID, certID id.CertificateID, to id.SubjectID) error
	Verify(ctx context.Context, certID id.CertificateID) (bool, error)
	Get(ctx context.Context, certID id.CertificateID) (certificate.Certificate, error)
	ListByHolder(ctx context.Context, holder id.SubjectID) ([]certificate.Certificate, error)
	LockAccount(ctx context.Context, actor, holder id.SubjectID) error
	UnlockAccount(ctx context.Context, actor, holder id.SubjectID) error
}

// CertificateHandler wires certificate endpoints.
type CertificateHandler struct {
	service CertificateService
	logger  *slog.Logger
}

func (h *CertificateHandler) Register(r chi.Router) {
	r.Post("/certificates", h.HandleIssue)
	r.Get("/certificates/{certID}", h.HandleGet)
	r.Get("/certificates/{certID}/verify", h.HandleVerify)
	r.Post("/certificates/{certID}/revoke", h.HandleRevoke)
	r.Post("/certificates/{certID}/migrate", h.HandleMigrate)
	r.Post("/certificates/{certID}/transfer", h.HandleTransfer)
	r.Get("/holders/{subject}/certificates", h.HandleListByHolder)
	r.Post("/holders/{subject}/lock", h.HandleLock)
	r.Post("/holders/{subject}/unlock", h.HandleUnlock)
}

type issueRequest struct {
	Holder             string `json:"holder"`
	CertType           string `json:"cert_type"`
	MetadataURI        string `json:"metadata_uri"`
	ValiditySeconds    int64  `json:"validity_seconds"` // 0 = never expires
	ProofHash          string `json:"proof_hash"`
	RequiredTrustScore int64  `json:"required_trust_score"`
}

// HandleIssue handles POST /certificates. The authenticated caller is the
// issuer; gating runs at this moment only.
func (h *CertificateHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[issueRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	holder, err := id.ParseSubjectID(req.Holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	certID, err := h.service.Issue(ctx, issuer, holder, req.CertType, req.MetadataURI,
		time.Duration(req.ValiditySeconds)*time.Second, req.ProofHash, req.RequiredTrustScore)
	if err != nil {
		h.logger.WarnContext(ctx, "certificate issuance rejected",
			"request_id", middleware.GetRequestID(ctx),
			"issuer", issuer.String(),
			"holder", holder.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]uint64{"certificate_id": uint64(certID)})
}

type certificateResponse struct {
	ID                 uint64 `json:"id"`
	Holder             string `json:"holder"`
	Issuer             string `json:"issuer"`
	CertType           string `json:"cert_type"`
	MetadataURI        string `json:"metadata_uri"`
	IssuedAt           string `json:"issued_at"`
	ExpiresAt          string `json:"expires_at,omitempty"`
	Revoked            bool   `json:"revoked"`
	RevokeReason       string `json:"revoke_reason,omitempty"`
	RequiredTrustScore int64  `json:"required_trust_score"`
}

func toCertificateResponse(cert certificate.Certificate) certificateResponse {
	resp := certificateResponse{
		ID:                 uint64(cert.ID),
		Holder:             cert.Holder.String(),
		Issuer:             cert.Issuer.String(),
		CertType:           cert.CertType,
		MetadataURI:        cert.MetadataURI,
		IssuedAt:           cert.IssuedAt.Format(time.RFC3339),
		Revoked:            cert.Revoked,
		RevokeReason:       cert.RevokeReason,
		RequiredTrustScore: cert.RequiredTrustScore,
	}
	if !cert.ExpiresAt.IsZero() {
		resp.ExpiresAt = cert.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

// HandleGet handles GET /certificates/{certID}.
func (h *CertificateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	certID, ok := uintParam(w, r, "certID")
	if !ok {
		return
	}
	cert, err := h.service.Get(r.Context(), id.CertificateID(certID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// HandleVerify handles GET /certificates/{certID}/verify. Unknown
// certificates are invalid, not errors.
func (h *CertificateHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	certID, ok := uintParam(w, r, "certID")
	if !ok {
		return
	}
	valid, err := h.service.Verify(r.Context(), id.CertificateID(certID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// HandleRevoke handles POST /certificates/{certID}/revoke.
func (h *CertificateHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	certID, ok := uintParam(w, r, "certID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[revokeRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Revoke(ctx, actor, id.CertificateID(certID), req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type migrateRequest struct {
	NewHolder      string `json:"new_holder"`
	MigrationProof string `json:"migration_proof"`
}

// HandleMigrate handles POST /certificates/{certID}/migrate.
func (h *CertificateHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	certID, ok := uintParam(w, r, "certID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[migrateRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	newHolder, err := id.ParseSubjectID(req.NewHolder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Migrate(ctx, actor, id.CertificateID(certID), newHolder, req.MigrationProof); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
}

type transferRequest struct {
	To string `json:"to"`
}

// HandleTransfer handles POST /certificates/{certID}/transfer. Certificates
// are soulbound; this always fails with a stable code so clients can detect
// the policy rather than a transient error.
func (h *CertificateHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	certID, ok := uintParam(w, r, "certID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[transferRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	to, err := id.ParseSubjectID(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Transfer(ctx, actor, id.CertificateID(certID), to); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// HandleListByHolder handles GET /holders/{subject}/certificates.
func (h *CertificateHandler) HandleListByHolder(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	certs, err := h.service.ListByHolder(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]certificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, toCertificateResponse(cert))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"certificates": out})
}

// HandleLock handles POST /holders/{subject}/lock.
func (h *CertificateHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

// HandleUnlock handles POST /holders/{subject}/unlock.
func (h *CertificateHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

func (h *CertificateHandler) setLock(w http.ResponseWriter, r *http.Request, locked bool) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}

	var err error
	status := "unlocked"
	if locked {
		status = "locked"
		err = h.service.LockAccount(ctx, actor, subject)
	} else {
		err = h.service.UnlockAccount(ctx, actor, subject)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
