package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/badge"
	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	"credence/pkg/platform/httputil"
)

// BadgeService is the slice of the badge engine the HTTP layer uses.
type BadgeService interface {
	CreateBadge(ctx context.Context, actor id.SubjectID, def badge.Badge, criterion *badge.Criterion) (id.BadgeID, error)
	Award(ctx context.Context, minter id.SubjectID, badgeID id.BadgeID, recipient id.SubjectID, reason, evidenceHash string) error
	Revoke(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, holder id.SubjectID, reason string) error
	Renew(ctx context.Context, minter id.SubjectID, badgeID id.BadgeID, holder id.SubjectID) error
	Transfer(ctx context.Context, holder id.SubjectID, badgeID id.BadgeID, to id.SubjectID) error
	SweepExpired(ctx context.Context, holders []id.SubjectID) (int, error)
	AutoAwardByCriteria(ctx context.Context, holder id.SubjectID) ([]id.BadgeID, error)
	SetBadgeActive(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, active bool) error
	UpdateImageURL(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, url string) error
	GetBadge(ctx context.Context, badgeID id.BadgeID) (badge.Badge, error)
	ListAwards(ctx context.Context, holder id.SubjectID) ([]badge.Award, error)
}

// BadgeHandler wires badge endpoints.
type BadgeHandler struct {
	service BadgeService
	logger  *slog.Logger
}

func (h *BadgeHandler) Register(r chi.Router) {
	r.Post("/badges", h.HandleCreate)
	r.Get("/badges/{badgeID}", h.HandleGet)
	r.Post("/badges/{badgeID}/award", h.HandleAward)
	r.Post("/badges/{badgeID}/revoke", h.HandleRevoke)
	r.Post("/badges/{badgeID}/renew", h.HandleRenew)
	r.Post("/badges/{badgeID}/transfer", h.HandleTransfer)
	r.Post("/badges/{badgeID}/active", h.HandleSetActive)
	r.Post("/badges/{badgeID}/image", h.HandleUpdateImage)
	r.Post("/badges/sweep", h.HandleSweep)
	r.Get("/holders/{subject}/badges", h.HandleListAwards)
	r.Post("/holders/{subject}/badges/auto-award", h.HandleAutoAward)
}

type createBadgeRequest struct {
	BadgeType          string `json:"badge_type"`
	Rarity             string `json:"rarity"`
	CriteriaHash       string `json:"criteria_hash"`
	RequiredTrustScore int64  `json:"required_trust_score"`
	MaxSupply          uint64 `json:"max_supply"`       // 0 = unlimited
	ValiditySeconds    int64  `json:"validity_seconds"` // 0 = permanent
	ImageURL           string `json:"image_url"`

	Criterion *struct {
		MinScore        int64 `json:"min_score"`
		MinCertificates int   `json:"min_certificates"`
	} `json:"criterion,omitempty"`
}

// HandleCreate handles POST /badges.
func (h *BadgeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createBadgeRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	def := badge.Badge{
		BadgeType:          req.BadgeType,
		Rarity:             badge.Rarity(req.Rarity),
		CriteriaHash:       req.CriteriaHash,
		RequiredTrustScore: req.RequiredTrustScore,
		MaxSupply:          req.MaxSupply,
		ValidityPeriod:     time.Duration(req.ValiditySeconds) * time.Second,
		ImageURL:           req.ImageURL,
	}
	var criterion *badge.Criterion
	if req.Criterion != nil {
		criterion = &badge.Criterion{
			MinScore:        req.Criterion.MinScore,
			MinCertificates: req.Criterion.MinCertificates,
		}
	}

	badgeID, err := h.service.CreateBadge(ctx, actor, def, criterion)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]uint64{"badge_id": uint64(badgeID)})
}

type badgeResponse struct {
	ID                 uint64 `json:"id"`
	BadgeType          string `json:"badge_type"`
	Rarity             string `json:"rarity"`
	RequiredTrustScore int64  `json:"required_trust_score"`
	MaxSupply          uint64 `json:"max_supply"`
	CurrentSupply      uint64 `json:"current_supply"`
	Active             bool   `json:"active"`
	ImageURL           string `json:"image_url,omitempty"`
}

// HandleGet handles GET /badges/{badgeID}.
func (h *BadgeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	def, err := h.service.GetBadge(r.Context(), id.BadgeID(badgeID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, badgeResponse{
		ID:                 uint64(def.ID),
		BadgeType:          def.BadgeType,
		Rarity:             string(def.Rarity),
		RequiredTrustScore: def.RequiredTrustScore,
		MaxSupply:          def.MaxSupply,
		CurrentSupply:      def.CurrentSupply,
		Active:             def.Active,
		ImageURL:           def.ImageURL,
	})
}

type awardRequest struct {
	Recipient    string `json:"recipient"`
	Reason       string `json:"reason"`
	EvidenceHash string `json:"evidence_hash"`
}

// HandleAward handles POST /badges/{badgeID}/award.
func (h *BadgeHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	minter, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[awardRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	recipient, err := id.ParseSubjectID(req.Recipient)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Award(ctx, minter, id.BadgeID(badgeID), recipient, req.Reason, req.EvidenceHash); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "awarded"})
}

type badgeRevokeRequest struct {
	Holder string `json:"holder"`
	Reason string `json:"reason"`
}

// HandleRevoke handles POST /badges/{badgeID}/revoke.
func (h *BadgeHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[badgeRevokeRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	holder, err := id.ParseSubjectID(req.Holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Revoke(ctx, actor, id.BadgeID(badgeID), holder, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type renewRequest struct {
	Holder string `json:"holder"`
}

// HandleRenew handles POST /badges/{badgeID}/renew.
func (h *BadgeHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	minter, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[renewRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	holder, err := id.ParseSubjectID(req.Holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Renew(ctx, minter, id.BadgeID(badgeID), holder); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "renewed"})
}

type badgeTransferRequest struct {
	To string `json:"to"`
}

// HandleTransfer handles POST /badges/{badgeID}/transfer. The caller
// transfers their own award; non-transferable badges refuse.
func (h *BadgeHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[badgeTransferRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	to, err := id.ParseSubjectID(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Transfer(ctx, holder, id.BadgeID(badgeID), to); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// HandleSetActive handles POST /badges/{badgeID}/active.
func (h *BadgeHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[setActiveRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetBadgeActive(ctx, actor, id.BadgeID(badgeID), req.Active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type updateImageRequest struct {
	URL string `json:"url"`
}

// HandleUpdateImage handles POST /badges/{badgeID}/image.
func (h *BadgeHandler) HandleUpdateImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	badgeID, ok := uintParam(w, r, "badgeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[updateImageRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.UpdateImageURL(ctx, actor, id.BadgeID(badgeID), req.URL); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type sweepRequest struct {
	Holders []string `json:"holders"`
}

// HandleSweep handles POST /badges/sweep. Anyone may run the sweep; it only
// materializes expiries that already happened.
func (h *BadgeHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := caller(w, r); !ok {
		return
	}
	req, ok := httputil.Decode[sweepRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	holders := make([]id.SubjectID, 0, len(req.Holders))
	for _, raw := range req.Holders {
		holder, err := id.ParseSubjectID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		holders = append(holders, holder)
	}

	swept, err := h.service.SweepExpired(ctx, holders)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"expired": swept})
}

type awardResponse struct {
	BadgeID   uint64 `json:"badge_id"`
	Holder    string `json:"holder"`
	EarnedAt  string `json:"earned_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Revoked   bool   `json:"revoked"`
	Reason    string `json:"reason,omitempty"`
}

// HandleListAwards handles GET /holders/{subject}/badges.
func (h *BadgeHandler) HandleListAwards(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	awards, err := h.service.ListAwards(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]awardResponse, 0, len(awards))
	for _, award := range awards {
		resp := awardResponse{
			BadgeID:  uint64(award.BadgeID),
			Holder:   award.Holder.String(),
			EarnedAt: award.EarnedAt.Format(time.RFC3339),
			Revoked:  award.Revoked,
			Reason:   award.Reason,
		}
		if !award.ExpiresAt.IsZero() {
			resp.ExpiresAt = award.ExpiresAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"awards": out})
}

// HandleAutoAward handles POST /holders/{subject}/badges/auto-award.
func (h *BadgeHandler) HandleAutoAward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := caller(w, r); !ok {
		return
	}
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}

	awarded, err := h.service.AutoAwardByCriteria(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids := make([]uint64, 0, len(awarded))
	for _, badgeID := range awarded {
		ids = append(ids, uint64(badgeID))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"awarded": ids})
}
