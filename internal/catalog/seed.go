// Package catalog loads submission types, stages and document requirements
// from a YAML seed file and applies them through the catalog service.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// Seed is the root of a catalog file.
type Seed struct {
	SubmissionTypes []TypeSeed `yaml:"submission_types"`
}

type TypeSeed struct {
	Code              string            `yaml:"code"`
	Name              string            `yaml:"name"`
	Kind              string            `yaml:"kind"`
	CertificatePrefix string            `yaml:"certificate_prefix"`
	Requirements      []RequirementSeed `yaml:"requirements"`
	Stages            []StageSeed       `yaml:"stages"`
}

type RequirementSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

type StageSeed struct {
	Name         string `yaml:"name"`
	Order        int    `yaml:"order"`
	ReviewerRole string `yaml:"reviewer_role"`
	// Requirements names type requirements gating this stage. A leading "?"
	// attaches the requirement as optional.
	Requirements []string `yaml:"requirements"`
}

// Parse decodes and checks a seed. Unknown keys are rejected.
func Parse(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Seed
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads a seed from path.
func ParseFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (s *Seed) check() error {
	codes := make(map[string]bool)
	for i, t := range s.SubmissionTypes {
		if t.Code == "" {
			return fmt.Errorf("submission_types[%d]: code is required", i)
		}
		if codes[t.Code] {
			return fmt.Errorf("submission type %q is defined twice", t.Code)
		}
		codes[t.Code] = true

		reqs := make(map[string]bool, len(t.Requirements))
		for _, r := range t.Requirements {
			if reqs[r.Name] {
				return fmt.Errorf("%s: requirement %q is defined twice", t.Code, r.Name)
			}
			reqs[r.Name] = true
		}
		orders := make(map[int]string, len(t.Stages))
		for _, st := range t.Stages {
			if prev, dup := orders[st.Order]; dup {
				return fmt.Errorf("%s: stages %q and %q share order %d", t.Code, prev, st.Name, st.Order)
			}
			orders[st.Order] = st.Name
			for _, ref := range st.Requirements {
				if name, _ := splitRef(ref); !reqs[name] {
					return fmt.Errorf("%s: stage %q references unknown requirement %q", t.Code, st.Name, name)
				}
			}
		}
	}
	return nil
}

func splitRef(ref string) (name string, required bool) {
	if len(ref) > 0 && ref[0] == '?' {
		return ref[1:], false
	}
	return ref, true
}

// Result reports what Apply did per type code.
type Result struct {
	Created []string
	Skipped []string
}

// Apply creates every type whose code does not exist yet. Existing types are
// left untouched so the seed can run on every start.
func Apply(ctx context.Context, svc *service.CatalogService, seed *Seed, log *logger.Logger) (*Result, error) {
	existing, err := svc.ListSubmissionTypes(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Code] = true
	}

	res := &Result{}
	for _, ts := range seed.SubmissionTypes {
		if have[ts.Code] {
			res.Skipped = append(res.Skipped, ts.Code)
			continue
		}
		if err := applyType(ctx, svc, ts); err != nil {
			return res, fmt.Errorf("seed %s: %w", ts.Code, err)
		}
		res.Created = append(res.Created, ts.Code)
		log.Info().Str("code", ts.Code).Int("stages", len(ts.Stages)).Int("requirements", len(ts.Requirements)).Msg("Catalog type seeded")
	}
	return res, nil
}

func applyType(ctx context.Context, svc *service.CatalogService, ts TypeSeed) error {
	t, err := svc.CreateSubmissionType(ctx, service.CreateTypeRequest{
		Code:              ts.Code,
		Name:              ts.Name,
		Kind:              workflow.Kind(ts.Kind),
		CertificatePrefix: ts.CertificatePrefix,
	})
	if err != nil {
		return err
	}

	reqIDs := make(map[string]string, len(ts.Requirements))
	for i, r := range ts.Requirements {
		created, err := svc.CreateRequirement(ctx, service.CreateRequirementRequest{
			SubmissionTypeID: t.ID,
			Name:             r.Name,
			Description:      r.Description,
			Required:         r.Required,
			Order:            i + 1,
		})
		if err != nil {
			return err
		}
		reqIDs[r.Name] = created.ID
	}

	for _, s := range ts.Stages {
		st, err := svc.CreateStage(ctx, service.CreateStageRequest{
			SubmissionTypeID: t.ID,
			Name:             s.Name,
			Order:            s.Order,
			ReviewerRole:     s.ReviewerRole,
		})
		if err != nil {
			return err
		}
		for i, ref := range s.Requirements {
			name, required := splitRef(ref)
			_, err := svc.AttachRequirement(ctx, service.AttachRequirementRequest{
				StageID:       st.ID,
				RequirementID: reqIDs[name],
				IsRequired:    required,
				Order:         i + 1,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
