package handler

import (
	"net/http"
	"testing"

	"github.com/pesio-ai/be-ip-review/internal/api"
)

type errorResponse struct {
	Error api.ErrorBody `json:"error"`
}

func TestHTTP_SubmitAndReview(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/submissions/" + f.submittal

	var sub api.Submission
	if code := f.do(http.MethodPost, base+"/submit", "owner-1", nil, &sub); code != http.StatusOK {
		t.Fatalf("submit: %d", code)
	}
	if sub.Status != "submitted" || sub.CurrentStageID == nil || *sub.CurrentStageID != f.intakeID {
		t.Fatalf("submitted = %+v", sub)
	}

	if code := f.do(http.MethodPost, base+"/start-review", "reviewer-1", nil, &sub); code != http.StatusOK {
		t.Fatalf("start review: %d", code)
	}

	decision := api.ReviewDecisionRequest{Decision: "approved", Notes: "Intake paperwork complete.", NextStageID: f.formalID, NextReviewerID: "reviewer-2"}
	if code := f.do(http.MethodPost, base+"/decisions", "reviewer-1", decision, &sub); code != http.StatusOK {
		t.Fatalf("decision: %d", code)
	}
	if *sub.CurrentStageID != f.formalID || sub.Status != "in_review" {
		t.Fatalf("after approval = %+v", sub)
	}

	var gates api.GateReport
	if code := f.do(http.MethodGet, base+"/gates", "", nil, &gates); code != http.StatusOK {
		t.Fatalf("gates: %d", code)
	}
	if gates.Stage.Satisfied || len(gates.Stage.Unmet) != 1 || gates.Stage.Unmet[0].Reason != "missing" {
		t.Fatalf("gates = %+v", gates)
	}

	var missing api.MissingRequirements
	f.do(http.MethodGet, base+"/missing-requirements", "", nil, &missing)
	if len(missing.RequirementIDs) != 1 || missing.RequirementIDs[0] != f.checkID {
		t.Fatalf("missing = %+v", missing)
	}

	var tl api.Timeline
	if code := f.do(http.MethodGet, base+"/timeline", "", nil, &tl); code != http.StatusOK {
		t.Fatalf("timeline: %d", code)
	}
	if len(tl.Groups) != 2 || tl.Groups[0].StageName != "Intake" || tl.Groups[1].StageName != "FormalReview" {
		t.Fatalf("timeline groups = %+v", tl.Groups)
	}

	var view api.SubmissionView
	if code := f.do(http.MethodGet, base, "", nil, &view); code != http.StatusOK {
		t.Fatalf("get: %d", code)
	}
	if view.CurrentStage == nil || view.CurrentStage.Name != "FormalReview" || len(view.Assignments) != 2 {
		t.Fatalf("view = %+v", view)
	}
}

func TestHTTP_GateFailureIs422WithUnmetList(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/submissions/" + f.submittal
	f.do(http.MethodPost, base+"/submit", "owner-1", nil, nil)
	f.do(http.MethodPost, base+"/advance", "reviewer-1", nil, nil)

	var resp errorResponse
	code := f.do(http.MethodPost, base+"/complete", "reviewer-1", nil, &resp)
	if code != http.StatusUnprocessableEntity || resp.Error.Code != "PRECONDITION_FAILED" {
		t.Fatalf("complete: %d %+v", code, resp)
	}
	unmet, ok := resp.Error.Details["unmet"].([]interface{})
	if !ok || len(unmet) != 1 {
		t.Fatalf("details = %+v", resp.Error.Details)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/submissions/" + f.submittal

	cases := []struct {
		name   string
		method string
		path   string
		actor  string
		body   interface{}
		status int
		code   string
	}{
		{"missing actor", http.MethodPost, base + "/submit", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown submission", http.MethodPost, "/api/v1/submissions/nope/submit", "owner-1", nil, http.StatusNotFound, "NOT_FOUND"},
		{"invalid transition", http.MethodPost, base + "/complete", "owner-1", nil, http.StatusConflict, "CONFLICT"},
		{"bad decision", http.MethodPost, base + "/decisions", "reviewer-1", map[string]string{"decision": "maybe", "notes": "looks fine to me"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"stale version", http.MethodPost, base + "/submit", "owner-1", map[string]int{"expected_version": 7}, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"referenced type", http.MethodDelete, "/api/v1/submission-types/" + f.typeID, "", nil, http.StatusConflict, "CONFLICT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp errorResponse
			if got := f.do(tc.method, tc.path, tc.actor, tc.body, &resp); got != tc.status || resp.Error.Code != tc.code {
				t.Fatalf("got %d %+v, want %d %s", got, resp.Error, tc.status, tc.code)
			}
		})
	}
}

func TestHTTP_BadDecisionNamesField(t *testing.T) {
	f := newFixture(t)
	var resp errorResponse
	f.do(http.MethodPost, "/api/v1/submissions/"+f.submittal+"/decisions", "reviewer-1",
		map[string]string{"decision": "maybe", "notes": "looks fine to me"}, &resp)
	if resp.Error.Field != "decision" {
		t.Fatalf("field = %q", resp.Error.Field)
	}
}

func TestHTTP_Catalog(t *testing.T) {
	f := newFixture(t)

	var typ api.SubmissionType
	code := f.do(http.MethodPost, "/api/v1/submission-types", "", api.CreateTypeRequest{Code: "design", Name: "Industrial design", Kind: "industrial_design", CertificatePrefix: "ds"}, &typ)
	if code != http.StatusCreated || typ.CertificatePrefix != "DS" {
		t.Fatalf("create type: %d %+v", code, typ)
	}

	var st api.Stage
	if code := f.do(http.MethodPost, "/api/v1/submission-types/"+typ.ID+"/stages", "", api.CreateStageRequest{Name: "Examination", Order: 1}, &st); code != http.StatusCreated {
		t.Fatalf("create stage: %d", code)
	}
	var rq api.Requirement
	if code := f.do(http.MethodPost, "/api/v1/submission-types/"+typ.ID+"/requirements", "", api.CreateRequirementRequest{Name: "Drawings", Required: true}, &rq); code != http.StatusCreated {
		t.Fatalf("create requirement: %d", code)
	}
	if code := f.do(http.MethodPost, "/api/v1/stages/"+st.ID+"/requirements", "", api.AttachRequirementRequest{RequirementID: rq.ID, IsRequired: true}, nil); code != http.StatusCreated {
		t.Fatalf("attach: %d", code)
	}

	name := "Substantive examination"
	if code := f.do(http.MethodPatch, "/api/v1/stages/"+st.ID, "", api.UpdateStageRequest{Name: &name}, &st); code != http.StatusOK || st.Name != name {
		t.Fatalf("update stage: %d %+v", code, st)
	}

	var def api.TypeDefinition
	if code := f.do(http.MethodGet, "/api/v1/submission-types/"+typ.ID, "", nil, &def); code != http.StatusOK {
		t.Fatalf("get type: %d", code)
	}
	if len(def.Stages) != 1 || len(def.Links[st.ID]) != 1 {
		t.Fatalf("definition = %+v", def)
	}

	var list struct {
		Types []api.SubmissionType `json:"submission_types"`
	}
	f.do(http.MethodGet, "/api/v1/submission-types", "", nil, &list)
	if len(list.Types) != 2 {
		t.Fatalf("types = %+v", list.Types)
	}

	if code := f.do(http.MethodDelete, "/api/v1/submission-types/"+typ.ID, "", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
}

func TestHTTP_Documents(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/submissions/" + f.submittal

	var doc api.Document
	code := f.do(http.MethodPost, base+"/documents", "owner-1", api.UploadDocumentRequest{RequirementID: f.checkID, FileName: "checklist.pdf"}, &doc)
	if code != http.StatusCreated || doc.Status != "pending" || doc.UploadedBy != "owner-1" {
		t.Fatalf("upload: %d %+v", code, doc)
	}

	var repl api.Document
	code = f.do(http.MethodPost, "/api/v1/documents/"+doc.ID+"/replace", "owner-1", api.ReplaceDocumentRequest{FileName: "checklist-v2.pdf"}, &repl)
	if code != http.StatusCreated || repl.ReplacesID == nil || *repl.ReplacesID != doc.ID {
		t.Fatalf("replace: %d %+v", code, repl)
	}

	var resp errorResponse
	if code := f.do(http.MethodPost, base+"/documents", "owner-1", api.UploadDocumentRequest{RequirementID: f.checkID}, &resp); code != http.StatusBadRequest || resp.Error.Field != "file_name" {
		t.Fatalf("missing file name: %d %+v", code, resp)
	}
}
