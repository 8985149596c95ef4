package httptransport

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credence/internal/anchor"
	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
)

// AnchorService is the slice of the anchor bridge the HTTP layer uses.
type AnchorService interface {
	PublishRoot(ctx context.Context, actor id.SubjectID, leaves []id.Commitment) (anchor.Root, error)
	AnchorUnder(ctx context.Context, subject id.SubjectID, epoch uint64, index int, path []anchor.Hash) error
	VerifyInclusion(ctx context.Context, epoch uint64, leaf id.Commitment, index int, path []anchor.Hash) (bool, error)
	LatestRoot(ctx context.Context) (anchor.Root, error)
	RecordFor(ctx context.Context, subject id.SubjectID) (anchor.Record, error)
}

// AnchorHandler wires anchor endpoints.
type AnchorHandler struct {
	service AnchorService
	logger  *slog.Logger
}

func (h *AnchorHandler) Register(r chi.Router) {
	r.Post("/anchors/roots", h.HandlePublishRoot)
	r.Get("/anchors/roots/latest", h.HandleLatestRoot)
	r.Post("/anchors/records", h.HandleAnchorUnder)
	r.Get("/anchors/records/{subject}", h.HandleGetRecord)
	r.Post("/anchors/verify", h.HandleVerifyInclusion)
}

type publishRootRequest struct {
	Leaves []string `json:"leaves"` // hex commitments, snapshot order
}

type rootResponse struct {
	Epoch       uint64 `json:"epoch"`
	Root        string `json:"root"`
	LeafCount   int    `json:"leaf_count"`
	PublishedAt string `json:"published_at"`
}

// HandlePublishRoot handles POST /anchors/roots.
func (h *AnchorHandler) HandlePublishRoot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[publishRootRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	leaves := make([]id.Commitment, 0, len(req.Leaves))
	for _, raw := range req.Leaves {
		leaf, err := id.ParseCommitment(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		leaves = append(leaves, leaf)
	}

	root, err := h.service.PublishRoot(ctx, actor, leaves)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rootResponse{
		Epoch:       root.Epoch,
		Root:        root.Root.String(),
		LeafCount:   root.LeafCount,
		PublishedAt: root.PublishedAt.Format(time.RFC3339),
	})
}

// HandleLatestRoot handles GET /anchors/roots/latest.
func (h *AnchorHandler) HandleLatestRoot(w http.ResponseWriter, r *http.Request) {
	root, err := h.service.LatestRoot(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rootResponse{
		Epoch:       root.Epoch,
		Root:        root.Root.String(),
		LeafCount:   root.LeafCount,
		PublishedAt: root.PublishedAt.Format(time.RFC3339),
	})
}

type anchorRecordRequest struct {
	Subject string   `json:"subject"`
	Epoch   uint64   `json:"epoch"`
	Index   int      `json:"index"`
	Path    []string `json:"path"` // hex sibling digests, bottom-up
}

// HandleAnchorUnder handles POST /anchors/records.
func (h *AnchorHandler) HandleAnchorUnder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := caller(w, r); !ok {
		return
	}
	req, ok := httputil.Decode[anchorRecordRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	subject, err := id.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	path, err := parseProofPath(req.Path)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AnchorUnder(ctx, subject, req.Epoch, req.Index, path); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "anchored"})
}

// HandleGetRecord handles GET /anchors/records/{subject}.
func (h *AnchorHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParam(w, r, "subject")
	if !ok {
		return
	}
	record, err := h.service.RecordFor(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"subject":     record.Subject.String(),
		"epoch":       record.Epoch,
		"leaf":        record.Leaf.String(),
		"recorded_at": record.RecordedAt.Format(time.RFC3339),
	})
}

type verifyInclusionRequest struct {
	Epoch uint64   `json:"epoch"`
	Leaf  string   `json:"leaf"`
	Index int      `json:"index"`
	Path  []string `json:"path"`
}

// HandleVerifyInclusion handles POST /anchors/verify.
func (h *AnchorHandler) HandleVerifyInclusion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[verifyInclusionRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	leaf, err := id.ParseCommitment(req.Leaf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	path, err := parseProofPath(req.Path)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	included, err := h.service.VerifyInclusion(ctx, req.Epoch, leaf, req.Index, path)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"included": included})
}

func parseProofPath(raw []string) ([]anchor.Hash, error) {
	path := make([]anchor.Hash, 0, len(raw))
	for _, element := range raw {
		decoded, err := hex.DecodeString(element)
		if err != nil || len(decoded) != 32 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "proof path elements must be 32-byte hex digests")
		}
		var digest anchor.Hash
		copy(digest[:], decoded)
		path = append(path, digest)
	}
	return path, nil
}
