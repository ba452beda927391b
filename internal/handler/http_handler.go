package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pesio-ai/be-ip-review/internal/api"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// ActorHeader carries the authenticated caller id set by the gateway.
const ActorHeader = "X-Actor-ID"

// Services bundles what the transports call into.
type Services struct {
	Workflow    *service.WorkflowService
	Review      *service.ReviewService
	Catalog     *service.CatalogService
	Submissions *service.SubmissionService
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc Services
	log *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc Services, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, log: log.Component("http")}
}

type transitionFunc func(context.Context, service.TransitionRequest) (*workflow.Submission, error)

// Routes registers every /api/v1 route on mux.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	// Catalog administration
	mux.HandleFunc("GET /api/v1/submission-types", h.ListSubmissionTypes)
	mux.HandleFunc("POST /api/v1/submission-types", h.CreateSubmissionType)
	mux.HandleFunc("GET /api/v1/submission-types/{id}", h.GetSubmissionType)
	mux.HandleFunc("DELETE /api/v1/submission-types/{id}", h.DeleteSubmissionType)
	mux.HandleFunc("POST /api/v1/submission-types/{id}/stages", h.CreateStage)
	mux.HandleFunc("POST /api/v1/submission-types/{id}/requirements", h.CreateRequirement)
	mux.HandleFunc("PATCH /api/v1/stages/{id}", h.UpdateStage)
	mux.HandleFunc("POST /api/v1/stages/{id}/requirements", h.AttachRequirement)

	// Submissions and documents
	mux.HandleFunc("POST /api/v1/submissions", h.CreateSubmission)
	mux.HandleFunc("GET /api/v1/submissions/{id}", h.GetSubmission)
	mux.HandleFunc("POST /api/v1/submissions/{id}/archive", h.ArchiveSubmission)
	mux.HandleFunc("POST /api/v1/submissions/{id}/documents", h.UploadDocument)
	mux.HandleFunc("POST /api/v1/documents/{id}/replace", h.ReplaceDocument)

	// Workflow
	transitions := map[string]transitionFunc{
		"submit":           h.svc.Workflow.Submit,
		"start-review":     h.svc.Workflow.StartReview,
		"advance":          h.svc.Workflow.AdvanceStage,
		"return":           h.svc.Workflow.ReturnStage,
		"request-revision": h.svc.Workflow.RequestRevision,
		"submit-revision":  h.svc.Workflow.SubmitRevision,
		"complete":         h.svc.Workflow.Complete,
		"reject":           h.svc.Workflow.Reject,
		"cancel":           h.svc.Workflow.Cancel,
	}
	for name, fn := range transitions {
		mux.HandleFunc("POST /api/v1/submissions/{id}/"+name, h.transition(fn))
	}
	mux.HandleFunc("POST /api/v1/submissions/{id}/decisions", h.ProcessReviewDecision)
	mux.HandleFunc("GET /api/v1/submissions/{id}/gates", h.EvaluateGates)
	mux.HandleFunc("GET /api/v1/submissions/{id}/missing-requirements", h.ListMissingRequirements)
	mux.HandleFunc("GET /api/v1/submissions/{id}/timeline", h.GetTimeline)
}

// decode reads the JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return &workflow.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// requireActor returns the caller id, or writes 401 when the gateway did not
// supply one.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := actor(r)
	if id == "" {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing "+ActorHeader+" header"))
		return "", false
	}
	return id, true
}

// ── Workflow ─────────────────────────────────────────────────────────────────

func (h *HTTPHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req api.TransitionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.SubmissionID = r.PathValue("id")
		req.ActorID = actorID
		if err := api.Validate(req); err != nil {
			writeError(w, err)
			return
		}

		sub, err := fn(r.Context(), req.ToService())
		if err != nil {
			h.log.Debug().Err(err).Str("submission_id", req.SubmissionID).Str("path", r.URL.Path).Msg("Transition refused")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromSubmission(sub))
	}
}

// ProcessReviewDecision handles review decision HTTP requests
func (h *HTTPHandler) ProcessReviewDecision(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req api.ReviewDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.SubmissionID = r.PathValue("id")
	req.ReviewerID = reviewerID
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.svc.Review.ProcessReviewDecision(r.Context(), req.ToService())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSubmission(sub))
}

func (h *HTTPHandler) EvaluateGates(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Workflow.EvaluateGates(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromGateReport(report))
}

func (h *HTTPHandler) ListMissingRequirements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ids, err := h.svc.Workflow.ListMissingRequirements(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, api.MissingRequirements{SubmissionID: id, RequirementIDs: ids})
}

func (h *HTTPHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.svc.Workflow.GetTimeline(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTimeline(tl))
}

// ── Submissions ──────────────────────────────────────────────────────────────

func (h *HTTPHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSubmissionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = actor(r)
	}
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.svc.Submissions.CreateSubmission(r.Context(), service.CreateSubmissionRequest{
		SubmissionTypeID: req.SubmissionTypeID,
		OwnerID:          req.OwnerID,
		Title:            req.Title,
		Details:          req.Details,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromSubmission(sub))
}

func (h *HTTPHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Submissions.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSubmissionView(view))
}

func (h *HTTPHandler) ArchiveSubmission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	sub, err := h.svc.Submissions.ArchiveSubmission(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSubmission(sub))
}

func (h *HTTPHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req api.UploadDocumentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.SubmissionID = r.PathValue("id")
	req.ActorID = actorID
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.svc.Submissions.UploadDocument(r.Context(), service.UploadDocumentRequest{
		SubmissionID:  req.SubmissionID,
		RequirementID: req.RequirementID,
		FileName:      req.FileName,
		ActorID:       req.ActorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromDocument(doc))
}

func (h *HTTPHandler) ReplaceDocument(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req api.ReplaceDocumentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.DocumentID = r.PathValue("id")
	req.ActorID = actorID
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.svc.Submissions.ReplaceDocument(r.Context(), service.ReplaceDocumentRequest{
		DocumentID: req.DocumentID,
		FileName:   req.FileName,
		ActorID:    req.ActorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromDocument(doc))
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) ListSubmissionTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.Catalog.ListSubmissionTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*api.SubmissionType, len(types))
	for i, t := range types {
		out[i] = api.FromType(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"submission_types": out})
}

func (h *HTTPHandler) CreateSubmissionType(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTypeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.svc.Catalog.CreateSubmissionType(r.Context(), service.CreateTypeRequest{
		Code:              req.Code,
		Name:              req.Name,
		Kind:              workflow.Kind(req.Kind),
		CertificatePrefix: req.CertificatePrefix,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromType(t))
}

func (h *HTTPHandler) GetSubmissionType(w http.ResponseWriter, r *http.Request) {
	def, err := h.svc.Catalog.GetSubmissionType(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromDefinition(def))
}

func (h *HTTPHandler) DeleteSubmissionType(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteSubmissionType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CreateStage(w http.ResponseWriter, r *http.Request) {
	var req api.CreateStageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.SubmissionTypeID = r.PathValue("id")
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	st, err := h.svc.Catalog.CreateStage(r.Context(), service.CreateStageRequest{
		SubmissionTypeID: req.SubmissionTypeID,
		Name:             req.Name,
		Order:            req.Order,
		ReviewerRole:     req.ReviewerRole,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromStage(st))
}

func (h *HTTPHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateStageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.StageID = r.PathValue("id")
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	st, err := h.svc.Catalog.UpdateStage(r.Context(), service.UpdateStageRequest{
		StageID:      req.StageID,
		Name:         req.Name,
		Order:        req.Order,
		ReviewerRole: req.ReviewerRole,
		Active:       req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromStage(st))
}

func (h *HTTPHandler) CreateRequirement(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRequirementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.SubmissionTypeID = r.PathValue("id")
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	rq, err := h.svc.Catalog.CreateRequirement(r.Context(), service.CreateRequirementRequest{
		SubmissionTypeID: req.SubmissionTypeID,
		Name:             req.Name,
		Description:      req.Description,
		Required:         req.Required,
		Order:            req.Order,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromRequirement(rq))
}

func (h *HTTPHandler) AttachRequirement(w http.ResponseWriter, r *http.Request) {
	var req api.AttachRequirementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.StageID = r.PathValue("id")
	if err := api.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.svc.Catalog.AttachRequirement(r.Context(), service.AttachRequirementRequest{
		StageID:       req.StageID,
		RequirementID: req.RequirementID,
		IsRequired:    req.IsRequired,
		Order:         req.Order,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromLink(link))
}
