package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/dispute"
	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	"credence/pkg/platform/httputil"
)

// DisputeService is the slice of the dispute arbiter the HTTP layer uses.
type DisputeService interface {
	Create(ctx context.Context, challenger, respondent id.SubjectID, kind, title, description, evidenceRef string, bond int64) (id.DisputeID, error)
	Vote(ctx context.Context, arbitrator id.SubjectID, disputeID id.DisputeID, inFavorOfChallenger bool) error
	Resolve(ctx context.Context, disputeID id.DisputeID) error
	Get(ctx context.Context, disputeID id.DisputeID) (dispute.Dispute, error)
	ListByParty(ctx context.Context, subject id.SubjectID) ([]id.DisputeID, error)
	AddArbitrator(ctx context.Context, actor, arbitrator id.SubjectID) error
	RemoveArbitrator(ctx context.Context, actor, arbitrator id.SubjectID) error
	Arbitrators() []id.SubjectID
}

// DisputeHandler wires dispute endpoints.
type DisputeHandler struct {
	service DisputeService
	logger  *slog.Logger
}

func (h *DisputeHandler) Register(r chi.Router) {
	r.Post("/disputes", h.HandleCreate)
	r.Get("/disputes/{disputeID}", h.HandleGet)
	r.Post("/disputes/{disputeID}/votes", h.HandleVote)
	r.Post("/disputes/{disputeID}/resolve", h.HandleResolve)
	r.Get("/holders/{subject}/disputes", h.HandleListByParty)
	r.Post("/arbitrators", h.HandleAddArbitrator)
	r.Delete("/arbitrators/{subject}", h.HandleRemoveArbitrator)
	r.Get("/arbitrators", h.HandleListArbitrators)
}

type createDisputeRequest struct {
	Respondent  string `json:"respondent"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	EvidenceRef string `json:"evidence_ref"`
	Bond        int64  `json:"bond"`
}

// HandleCreate handles POST /disputes. The authenticated caller is the
// challenger and their bond moves to escrow on success.
func (h *DisputeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	challenger, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createDisputeRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	respondent, err := id.ParseSubjectID(req.Respondent)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	disputeID, err := h.service.Create(ctx, challenger, respondent, req.Kind, req.Title, req.Description, req.EvidenceRef, req.Bond)
	if err != nil {
		h.logger.WarnContext(ctx, "dispute creation rejected",
			"request_id", middleware.GetRequestID(ctx),
			"challenger", challenger.String(),
			"respondent", respondent.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]uint64{"dispute_id": uint64(disputeID)})
}

type disputeResponse struct {
	ID             uint64   `json:"id"`
	Challenger     string   `json:"challenger"`
	Respondent     string   `json:"respondent"`
	Kind           string   `json:"kind"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Bond           int64    `json:"bond"`
	Panel          []string `json:"panel"`
	VotesFor       int      `json:"votes_for"`
	VotesAgainst   int      `json:"votes_against"`
	ChallengerWon  bool     `json:"challenger_won"`
	CreatedAt      string   `json:"created_at"`
	ReviewDeadline string   `json:"review_deadline"`
}

// HandleGet handles GET /disputes/{disputeID}.
func (h *DisputeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := uintParam(w, r, "disputeID")
	if !ok {
		return
	}
	record, err := h.service.Get(r.Context(), id.DisputeID(disputeID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	panel := make([]string, 0, len(record.Panel))
	for _, member := range record.Panel {
		panel = append(panel, member.String())
	}
	httputil.WriteJSON(w, http.StatusOK, disputeResponse{
		ID:             uint64(record.ID),
		Challenger:     record.Challenger.String(),
		Respondent:     record.Respondent.String(),
		Kind:           record.Kind,
		Title:          record.Title,
		Status:         string(record.Status),
		Bond:           record.Bond,
		Panel:          panel,
		VotesFor:       record.VotesFor,
		VotesAgainst:   record.VotesAgainst,
		ChallengerWon:  record.ChallengerWon,
		CreatedAt:      record.CreatedAt.Format(time.RFC3339),
		ReviewDeadline: record.ReviewDeadline.Format(time.RFC3339),
	})
}

type voteRequest struct {
	InFavorOfChallenger bool `json:"in_favor_of_challenger"`
}

// HandleVote handles POST /disputes/{disputeID}/votes.
func (h *DisputeHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	arbitrator, ok := caller(w, r)
	if !ok {
		return
	}
	disputeID, ok := uintParam(w, r, "disputeID")
	if !ok {
		return
	}
	req, ok := httputil.Decode[voteRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Vote(ctx, arbitrator, id.DisputeID(disputeID), req.InFavorOfChallenger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "voted"})
}

// HandleResolve handles POST /disputes/{disputeID}/resolve. Callable by
// anyone once the deadline has passed or the panel has fully voted.
func (h *DisputeHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	disputeID, ok := uintParam(w, r, "disputeID")
	if !ok {
		return
	}

	if err := h.service.Resolve(r.Context(), id.DisputeID(disputeID)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// HandleListByParty handles GET /holders/{subject}/disputes.
func (h *DisputeHandler) HandleListByParty(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	ids, err := h.service.ListByParty(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]uint64, 0, len(ids))
	for _, disputeID := range ids {
		out = append(out, uint64(disputeID))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"disputes": out})
}

type addArbitratorRequest struct {
	Subject string `json:"subject"`
}

// HandleAddArbitrator handles POST /arbitrators.
func (h *DisputeHandler) HandleAddArbitrator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[addArbitratorRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	arbitrator, err := id.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AddArbitrator(ctx, actor, arbitrator); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// HandleRemoveArbitrator handles DELETE /arbitrators/{subject}.
func (h *DisputeHandler) HandleRemoveArbitrator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	arbitrator, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}

	if err := h.service.RemoveArbitrator(ctx, actor, arbitrator); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// HandleListArbitrators handles GET /arbitrators.
func (h *DisputeHandler) HandleListArbitrators(w http.ResponseWriter, r *http.Request) {
	roster := h.service.Arbitrators()
	out := make([]string, 0, len(roster))
	for _, member := range roster {
		out = append(out, member.String())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"arbitrators": out})
}
