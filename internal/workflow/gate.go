package workflow

import "sort"

// RequirementLink is one requirement in a gate's scope.
type RequirementLink struct {
	RequirementID string
	Name          string
	Required      bool
	Order         int
}

// GateScope names which requirement set a gate evaluated.
type GateScope string

const (
	ScopeStage GateScope = "stage"
	ScopeType  GateScope = "submission_type"
)

// UnmetRequirement explains why one requirement blocks the gate.
type UnmetRequirement struct {
	RequirementID string         `json:"requirement_id"`
	Name          string         `json:"name"`
	Reason        string         `json:"reason"`
	LatestStatus  DocumentStatus `json:"latest_status,omitempty"`
}

// Unmet reasons.
const (
	ReasonMissing     = "missing"
	ReasonNotApproved = "not_approved"
)

// GateResult is the outcome of one gate evaluation.
type GateResult struct {
	Scope     GateScope
	Satisfied bool
	Checked   int
	Unmet     []UnmetRequirement
}

// UnmetIDs returns the ids of the unmet requirements in scope order.
func (r GateResult) UnmetIDs() []string {
	ids := make([]string, len(r.Unmet))
	for i, u := range r.Unmet {
		ids[i] = u.RequirementID
	}
	return ids
}

// StageLinks resolves the requirements attached to a stage. Links to
// inactive or unknown requirements are skipped.
func StageLinks(links []*StageRequirement, reqs []*DocumentRequirement) []RequirementLink {
	byID := make(map[string]*DocumentRequirement, len(reqs))
	for _, r := range reqs {
		byID[r.ID] = r
	}
	out := make([]RequirementLink, 0, len(links))
	for _, l := range links {
		r, ok := byID[l.RequirementID]
		if !ok || !r.Active {
			continue
		}
		out = append(out, RequirementLink{
			RequirementID: r.ID,
			Name:          r.Name,
			Required:      l.IsRequired,
			Order:         l.Order,
		})
	}
	sortLinks(out)
	return out
}

// TypeLinks returns every active requirement of a submission type.
func TypeLinks(reqs []*DocumentRequirement) []RequirementLink {
	out := make([]RequirementLink, 0, len(reqs))
	for _, r := range reqs {
		if !r.Active {
			continue
		}
		out = append(out, RequirementLink{
			RequirementID: r.ID,
			Name:          r.Name,
			Required:      r.Required,
			Order:         r.Order,
		})
	}
	sortLinks(out)
	return out
}

func sortLinks(links []RequirementLink) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Order != links[j].Order {
			return links[i].Order < links[j].Order
		}
		return links[i].RequirementID < links[j].RequirementID
	})
}

// EvaluateGate checks that every required link has at least one active
// approved document. Optional links never block. An empty required set is
// vacuously satisfied.
func EvaluateGate(scope GateScope, links []RequirementLink, docs []*SubmissionDocument) GateResult {
	byReq := make(map[string][]*SubmissionDocument)
	for _, d := range docs {
		if d.Active() {
			byReq[d.RequirementID] = append(byReq[d.RequirementID], d)
		}
	}

	res := GateResult{Scope: scope, Satisfied: true}
	for _, l := range links {
		if !l.Required {
			continue
		}
		res.Checked++
		active := byReq[l.RequirementID]
		if anyApproved(active) {
			continue
		}
		u := UnmetRequirement{RequirementID: l.RequirementID, Name: l.Name, Reason: ReasonMissing}
		if latest := mostRecent(active); latest != nil {
			u.Reason = ReasonNotApproved
			u.LatestStatus = latest.Status
		}
		res.Unmet = append(res.Unmet, u)
		res.Satisfied = false
	}
	return res
}

// RequirementsSatisfied is EvaluateGate reduced to a boolean.
func RequirementsSatisfied(links []RequirementLink, docs []*SubmissionDocument) bool {
	return EvaluateGate(ScopeStage, links, docs).Satisfied
}

// LatestActiveDocument returns the most recent non-replaced document for a
// requirement: highest CreatedAt, then highest Seq.
func LatestActiveDocument(docs []*SubmissionDocument, requirementID string) *SubmissionDocument {
	var active []*SubmissionDocument
	for _, d := range docs {
		if d.RequirementID == requirementID && d.Active() {
			active = append(active, d)
		}
	}
	return mostRecent(active)
}

func mostRecent(docs []*SubmissionDocument) *SubmissionDocument {
	var best *SubmissionDocument
	for _, d := range docs {
		if best == nil || newer(d, best) {
			best = d
		}
	}
	return best
}

func newer(a, b *SubmissionDocument) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

func anyApproved(docs []*SubmissionDocument) bool {
	for _, d := range docs {
		if d.Status == DocumentApproved {
			return true
		}
	}
	return false
}
