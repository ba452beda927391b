package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

type fixture struct {
	t         *testing.T
	svc       Services
	mux       *http.ServeMux
	typeID    string
	intakeID  string
	formalID  string
	checkID   string
	submittal string
}

// newFixture seeds a two-stage patent type and a draft submission.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	log := logger.Nop()
	registry := workflow.NewDetailRegistry()
	opts := service.Options{MinNotesLength: 10}
	svc := Services{
		Workflow:    service.NewWorkflowService(store, clk, opts, log),
		Review:      service.NewReviewService(store, clk, opts, log),
		Catalog:     service.NewCatalogService(store, registry, clk, log),
		Submissions: service.NewSubmissionService(store, registry, clk, log),
	}

	f := &fixture{t: t, svc: svc, mux: http.NewServeMux()}
	NewHTTPHandler(svc, log).Routes(f.mux)

	typ, err := svc.Catalog.CreateSubmissionType(ctx, service.CreateTypeRequest{Code: "patent", Name: "Patent", Kind: workflow.KindPatent})
	f.must(err)
	intake, err := svc.Catalog.CreateStage(ctx, service.CreateStageRequest{SubmissionTypeID: typ.ID, Name: "Intake", Order: 1})
	f.must(err)
	formal, err := svc.Catalog.CreateStage(ctx, service.CreateStageRequest{SubmissionTypeID: typ.ID, Name: "FormalReview", Order: 2})
	f.must(err)
	check, err := svc.Catalog.CreateRequirement(ctx, service.CreateRequirementRequest{SubmissionTypeID: typ.ID, Name: "Checklist", Required: true})
	f.must(err)
	_, err = svc.Catalog.AttachRequirement(ctx, service.AttachRequirementRequest{StageID: formal.ID, RequirementID: check.ID, IsRequired: true})
	f.must(err)
	sub, err := svc.Submissions.CreateSubmission(ctx, service.CreateSubmissionRequest{
		SubmissionTypeID: typ.ID,
		OwnerID:          "owner-1",
		Title:            "Self-tightening bolt",
		Details:          json.RawMessage(`{"invention_title":"Self-tightening bolt","inventors":["Ada Byron"],"claim_count":3}`),
	})
	f.must(err)

	f.typeID, f.intakeID, f.formalID, f.checkID, f.submittal = typ.ID, intake.ID, formal.ID, check.ID, sub.ID
	return f
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("fixture: %v", err)
	}
}

// do sends a request through the mux and decodes the JSON response into out
// when out is non-nil.
func (f *fixture) do(method, path, actor string, body interface{}, out interface{}) int {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			f.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}
