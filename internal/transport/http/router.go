// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules stay behind the service
// interfaces.
package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	Identity     IdentityService
	Trust        TrustService
	Certificates CertificateService
	Badges       BadgeService
	Disputes     DisputeService
	Anchors      AnchorService
	Verification VerificationService
	Policy       PolicyService
	Keys         KeyIssuer

	TokenValidator middleware.TokenValidator
	APIKeys        middleware.KeyAuthenticator
	Logger         *slog.Logger
}

// NewRouter wires all endpoints. Interactive callers authenticate with
// bearer tokens; machine callers (verification providers) with API keys.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	identity := &IdentityHandler{service: deps.Identity, trust: deps.Trust, logger: deps.Logger}
	certs := &CertificateHandler{service: deps.Certificates, logger: deps.Logger}
	badges := &BadgeHandler{service: deps.Badges, logger: deps.Logger}
	disputes := &DisputeHandler{service: deps.Disputes, logger: deps.Logger}
	anchors := &AnchorHandler{service: deps.Anchors, logger: deps.Logger}
	admin := &AdminHandler{policy: deps.Policy, keys: deps.Keys, logger: deps.Logger}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.TokenValidator, deps.Logger))
		identity.Register(r)
		certs.Register(r)
		badges.Register(r)
		disputes.Register(r)
		anchors.Register(r)
		admin.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(deps.APIKeys, deps.Logger))
		verification := &VerificationHandler{service: deps.Verification, logger: deps.Logger}
		verification.Register(r)
	})

	return r
}

// caller extracts the authenticated subject, rejecting the request itself
// when authentication middleware was bypassed.
func caller(w http.ResponseWriter, r *http.Request) (id.SubjectID, bool) {
	subject := middleware.GetSubject(r.Context())
	if subject.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.NilSubject, false
	}
	return subject, true
}

// subjectParam parses a subject ID from the URL.
func subjectParam(w http.ResponseWriter, r *http.Request, name string) (id.SubjectID, bool) {
	subject, err := id.ParseSubjectID(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, err)
		return id.NilSubject, false
	}
	return subject, true
}

// uintParam parses a numeric record ID from the URL.
func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", name))
		return 0, false
	}
	return value, true
}
