package service

import (
	stderrors "errors"
	"testing"

	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

func TestCatalog_GetSubmissionType(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()

	def, err := h.catalog.GetSubmissionType(h.ctx, fx.typ.ID)
	h.must(err, "get type")
	if len(def.Stages) != 2 || def.Stages[0].ID != fx.intake.ID || def.Stages[1].ID != fx.formal.ID {
		t.Fatalf("stages = %+v", def.Stages)
	}
	if len(def.Requirements) != 1 || def.Requirements[0].ID != fx.checklist.ID {
		t.Fatalf("requirements = %+v", def.Requirements)
	}
	if len(def.Links[fx.intake.ID]) != 0 || len(def.Links[fx.formal.ID]) != 1 {
		t.Fatalf("links = %+v", def.Links)
	}
}

func TestCatalog_CreateTypeValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name  string
		req   CreateTypeRequest
		field string
	}{
		{"bad code", CreateTypeRequest{Code: "Patent Types", Name: "Patent", Kind: workflow.KindPatent}, "code"},
		{"missing name", CreateTypeRequest{Code: "patent", Kind: workflow.KindPatent}, "name"},
		{"unknown kind", CreateTypeRequest{Code: "patent", Name: "Patent", Kind: "utility_model"}, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.catalog.CreateSubmissionType(h.ctx, tc.req)
			var ve *workflow.ValidationError
			if !stderrors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected ValidationError on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestCatalog_DeleteReferencedType(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	h.draft(fx)

	err := h.catalog.DeleteSubmissionType(h.ctx, fx.typ.ID)
	if !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := h.catalog.GetSubmissionType(h.ctx, fx.typ.ID); err != nil {
		t.Fatalf("type should survive: %v", err)
	}
}

func TestCatalog_DeleteUnusedType(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()

	h.must(h.catalog.DeleteSubmissionType(h.ctx, fx.typ.ID), "delete type")
	_, err := h.catalog.GetSubmissionType(h.ctx, fx.typ.ID)
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalog_StageChangesGuardedByActiveReview(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	h.inReview(fx) // active assignment at Intake, order 1

	newOrder := 3
	_, err := h.catalog.UpdateStage(h.ctx, UpdateStageRequest{StageID: fx.intake.ID, Order: &newOrder})
	if !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Fatalf("reorder of the in-flight stage: expected conflict, got %v", err)
	}

	inactive := false
	_, err = h.catalog.UpdateStage(h.ctx, UpdateStageRequest{StageID: fx.intake.ID, Active: &inactive})
	if !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Fatalf("deactivate: expected conflict, got %v", err)
	}

	_, err = h.catalog.CreateStage(h.ctx, CreateStageRequest{SubmissionTypeID: fx.typ.ID, Name: "Triage", Order: 1})
	if !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Fatalf("insert before the in-flight stage: expected conflict, got %v", err)
	}

	name := "Intake Desk"
	st, err := h.catalog.UpdateStage(h.ctx, UpdateStageRequest{StageID: fx.intake.ID, Name: &name})
	h.must(err, "rename")
	if st.Name != name || st.Order != 1 {
		t.Fatalf("stage = %+v", st)
	}

	// stages after the one in review are unaffected
	later := 3
	st, err = h.catalog.UpdateStage(h.ctx, UpdateStageRequest{StageID: fx.formal.ID, Order: &later})
	h.must(err, "reorder formal review")
	if st.Order != 3 {
		t.Fatalf("order = %d", st.Order)
	}
}

func TestCatalog_AttachAcrossTypesRejected(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	mark, err := h.catalog.CreateSubmissionType(h.ctx, CreateTypeRequest{Code: "trademark", Name: "Trademark", Kind: workflow.KindTrademark})
	h.must(err, "create trademark")
	specimen, err := h.catalog.CreateRequirement(h.ctx, CreateRequirementRequest{SubmissionTypeID: mark.ID, Name: "Specimen", Required: true})
	h.must(err, "create specimen")

	_, err = h.catalog.AttachRequirement(h.ctx, AttachRequirementRequest{StageID: fx.formal.ID, RequirementID: specimen.ID, IsRequired: true})
	var ve *workflow.ValidationError
	if !stderrors.As(err, &ve) || ve.Field != "requirement_id" {
		t.Fatalf("expected ValidationError on requirement_id, got %v", err)
	}
}

func TestCatalog_ListSubmissionTypes(t *testing.T) {
	h := newHarness(t)
	h.seedPatent()
	_, err := h.catalog.CreateSubmissionType(h.ctx, CreateTypeRequest{Code: "copyright", Name: "Copyright", Kind: workflow.KindCopyright})
	h.must(err, "create copyright")

	types, err := h.catalog.ListSubmissionTypes(h.ctx)
	h.must(err, "list types")
	if len(types) != 2 {
		t.Fatalf("got %d types", len(types))
	}
}
