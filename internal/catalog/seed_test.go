package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

func newCatalogService() *service.CatalogService {
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return service.NewCatalogService(repository.NewMemoryStore(), workflow.NewDetailRegistry(), clk, logger.Nop())
}

func TestParseFile(t *testing.T) {
	seed, err := ParseFile("testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(seed.SubmissionTypes) != 2 {
		t.Fatalf("got %d types", len(seed.SubmissionTypes))
	}
	patent := seed.SubmissionTypes[0]
	if patent.CertificatePrefix != "PAT" || len(patent.Stages) != 2 || patent.Stages[1].Requirements[1] != "?Drawings" {
		t.Fatalf("patent = %+v", patent)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
submission_types:
  - code: patent
    colour: red
`,
		"duplicate code": `
submission_types:
  - code: patent
  - code: patent
`,
		"duplicate order": `
submission_types:
  - code: patent
    stages:
      - {name: A, order: 1}
      - {name: B, order: 1}
`,
		"unknown requirement": `
submission_types:
  - code: patent
    stages:
      - {name: A, order: 1, requirements: [Claims]}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(doc)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestApply_CreatesOnceAndLinks(t *testing.T) {
	ctx := context.Background()
	svc := newCatalogService()
	seed, err := ParseFile("testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	res, err := Apply(ctx, svc, seed, logger.Nop())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Created) != 2 || len(res.Skipped) != 0 {
		t.Fatalf("first apply = %+v", res)
	}

	types, err := svc.ListSubmissionTypes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var patentID string
	for _, typ := range types {
		if typ.Code == "patent" {
			patentID = typ.ID
		}
	}
	def, err := svc.GetSubmissionType(ctx, patentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(def.Stages) != 2 || len(def.Requirements) != 3 {
		t.Fatalf("definition = %+v", def)
	}
	formal := def.Links[def.Stages[1].ID]
	if len(formal) != 2 || !formal[0].IsRequired || formal[1].IsRequired {
		t.Fatalf("formal review links = %+v", formal)
	}

	res, err = Apply(ctx, svc, seed, logger.Nop())
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(res.Created) != 0 || len(res.Skipped) != 2 {
		t.Fatalf("second apply = %+v", res)
	}
}
