// Package api holds the wire types shared by the HTTP and gRPC transports
// and by the gRPC client. Requests carry validator tags; responses are built
// from domain values with the From* helpers.
package api

import (
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// ── Requests ─────────────────────────────────────────────────────────────────

// TransitionRequest is the body of every plain transition call. ActorID is
// filled from the X-Actor-ID header (HTTP) or x-actor-id metadata (gRPC).
type TransitionRequest struct {
	SubmissionID    string                 `json:"submission_id" validate:"required"`
	ActorID         string                 `json:"actor_id" validate:"required"`
	Comment         string                 `json:"comment,omitempty" validate:"max=4000"`
	ExpectedVersion int                    `json:"expected_version,omitempty" validate:"gte=0"`
	NextStageID     string                 `json:"next_stage_id,omitempty"`
	NextReviewerID  string                 `json:"next_reviewer_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func (r TransitionRequest) ToService() service.TransitionRequest {
	return service.TransitionRequest{
		SubmissionID:    r.SubmissionID,
		ActorID:         r.ActorID,
		Comment:         r.Comment,
		Metadata:        r.Metadata,
		ExpectedVersion: r.ExpectedVersion,
		NextStageID:     r.NextStageID,
		NextReviewerID:  r.NextReviewerID,
	}
}

type DocumentUpdate struct {
	DocumentID string  `json:"document_id" validate:"required"`
	Status     string  `json:"status" validate:"required,oneof=pending approved rejected revision_needed"`
	Notes      *string `json:"notes,omitempty"`
}

type ReviewDecisionRequest struct {
	SubmissionID    string                 `json:"submission_id" validate:"required"`
	ReviewerID      string                 `json:"reviewer_id" validate:"required"`
	Decision        string                 `json:"decision" validate:"required,oneof=approved revision_needed rejected"`
	Notes           string                 `json:"notes" validate:"required,max=4000"`
	DocumentUpdates []DocumentUpdate       `json:"document_updates,omitempty" validate:"dive"`
	NextStageID     string                 `json:"next_stage_id,omitempty"`
	NextReviewerID  string                 `json:"next_reviewer_id,omitempty"`
	ExpectedVersion int                    `json:"expected_version,omitempty" validate:"gte=0"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func (r ReviewDecisionRequest) ToService() service.ReviewDecisionRequest {
	updates := make([]service.DocumentUpdate, len(r.DocumentUpdates))
	for i, u := range r.DocumentUpdates {
		updates[i] = service.DocumentUpdate{DocumentID: u.DocumentID, Status: workflow.DocumentStatus(u.Status), Notes: u.Notes}
	}
	return service.ReviewDecisionRequest{
		SubmissionID:    r.SubmissionID,
		ReviewerID:      r.ReviewerID,
		Decision:        workflow.Decision(r.Decision),
		Notes:           r.Notes,
		DocumentUpdates: updates,
		NextStageID:     r.NextStageID,
		NextReviewerID:  r.NextReviewerID,
		ExpectedVersion: r.ExpectedVersion,
		Metadata:        r.Metadata,
	}
}

// SubmissionRequest addresses a single submission for read calls.
type SubmissionRequest struct {
	SubmissionID string `json:"submission_id" validate:"required"`
}

type CreateSubmissionRequest struct {
	SubmissionTypeID string          `json:"submission_type_id" validate:"required"`
	OwnerID          string          `json:"owner_id" validate:"required"`
	Title            string          `json:"title" validate:"required,max=500"`
	Details          json.RawMessage `json:"details" validate:"required"`
}

type UploadDocumentRequest struct {
	SubmissionID  string `json:"submission_id" validate:"required"`
	RequirementID string `json:"requirement_id" validate:"required"`
	FileName      string `json:"file_name" validate:"required,max=255"`
	ActorID       string `json:"actor_id" validate:"required"`
}

type ReplaceDocumentRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
	FileName   string `json:"file_name" validate:"required,max=255"`
	ActorID    string `json:"actor_id" validate:"required"`
}

type CreateTypeRequest struct {
	Code              string `json:"code" validate:"required,max=64"`
	Name              string `json:"name" validate:"required,max=200"`
	Kind              string `json:"kind" validate:"required"`
	CertificatePrefix string `json:"certificate_prefix,omitempty" validate:"omitempty,alphanum,max=8"`
}

type CreateStageRequest struct {
	SubmissionTypeID string `json:"submission_type_id" validate:"required"`
	Name             string `json:"name" validate:"required,max=200"`
	Order            int    `json:"order" validate:"required,gt=0"`
	ReviewerRole     string `json:"reviewer_role,omitempty" validate:"max=100"`
}

type UpdateStageRequest struct {
	StageID      string  `json:"stage_id" validate:"required"`
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Order        *int    `json:"order,omitempty" validate:"omitempty,gt=0"`
	ReviewerRole *string `json:"reviewer_role,omitempty" validate:"omitempty,max=100"`
	Active       *bool   `json:"active,omitempty"`
}

type CreateRequirementRequest struct {
	SubmissionTypeID string `json:"submission_type_id" validate:"required"`
	Name             string `json:"name" validate:"required,max=200"`
	Description      string `json:"description,omitempty" validate:"max=2000"`
	Required         bool   `json:"required"`
	Order            int    `json:"order" validate:"gte=0"`
}

type AttachRequirementRequest struct {
	StageID       string `json:"stage_id" validate:"required"`
	RequirementID string `json:"requirement_id" validate:"required"`
	IsRequired    bool   `json:"is_required"`
	Order         int    `json:"order" validate:"gte=0"`
}

// ── Responses ────────────────────────────────────────────────────────────────

type Submission struct {
	ID               string          `json:"id"`
	SubmissionTypeID string          `json:"submission_type_id"`
	CurrentStageID   *string         `json:"current_stage_id"`
	Status           string          `json:"status"`
	Certificate      *string         `json:"certificate_number,omitempty"`
	OwnerID          string          `json:"owner_id"`
	Title            string          `json:"title"`
	Details          json.RawMessage `json:"details,omitempty"`
	Version          int             `json:"version"`
	Archived         bool            `json:"archived"`
	SubmittedAt      *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func FromSubmission(s *workflow.Submission) *Submission {
	if s == nil {
		return nil
	}
	return &Submission{
		ID:               s.ID,
		SubmissionTypeID: s.SubmissionTypeID,
		CurrentStageID:   s.CurrentStageID,
		Status:           string(s.Status),
		Certificate:      s.Certificate,
		OwnerID:          s.OwnerID,
		Title:            s.Title,
		Details:          s.Details,
		Version:          s.Version,
		Archived:         s.Archived,
		SubmittedAt:      s.SubmittedAt,
		CompletedAt:      s.CompletedAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

type Document struct {
	ID            string    `json:"id"`
	SubmissionID  string    `json:"submission_id"`
	RequirementID string    `json:"requirement_id"`
	FileName      string    `json:"file_name"`
	Status        string    `json:"status"`
	Notes         *string   `json:"notes,omitempty"`
	ReplacesID    *string   `json:"replaces_id,omitempty"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func FromDocument(d *workflow.SubmissionDocument) *Document {
	return &Document{
		ID:            d.ID,
		SubmissionID:  d.SubmissionID,
		RequirementID: d.RequirementID,
		FileName:      d.FileName,
		Status:        string(d.Status),
		Notes:         d.Notes,
		ReplacesID:    d.ReplacesID,
		UploadedBy:    d.UploadedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type Assignment struct {
	ID          string     `json:"id"`
	StageID     string     `json:"stage_id"`
	ReviewerID  *string    `json:"reviewer_id"`
	Status      string     `json:"status"`
	Notes       *string    `json:"notes,omitempty"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy *string    `json:"completed_by,omitempty"`
}

func FromAssignment(a *workflow.WorkflowAssignment) *Assignment {
	return &Assignment{
		ID:          a.ID,
		StageID:     a.StageID,
		ReviewerID:  a.ReviewerID,
		Status:      string(a.Status),
		Notes:       a.Notes,
		AssignedAt:  a.AssignedAt,
		CompletedAt: a.CompletedAt,
		CompletedBy: a.CompletedBy,
	}
}

// SubmissionView is the detail response of GetSubmission.
type SubmissionView struct {
	Submission     *Submission   `json:"submission"`
	TypeCode       string        `json:"submission_type"`
	CurrentStage   *Stage        `json:"current_stage,omitempty"`
	Documents      []*Document   `json:"documents"`
	Assignments    []*Assignment `json:"assignments"`
	AllowedActions []string      `json:"allowed_actions"`
}

func FromSubmissionView(v *service.SubmissionView) *SubmissionView {
	out := &SubmissionView{
		Submission:     FromSubmission(v.Submission),
		TypeCode:       v.Type.Code,
		Documents:      make([]*Document, len(v.Documents)),
		Assignments:    make([]*Assignment, len(v.Assignments)),
		AllowedActions: make([]string, len(v.AllowedActions)),
	}
	if v.CurrentStage != nil {
		out.CurrentStage = FromStage(v.CurrentStage)
	}
	for i, d := range v.Documents {
		out.Documents[i] = FromDocument(d)
	}
	for i, a := range v.Assignments {
		out.Assignments[i] = FromAssignment(a)
	}
	for i, a := range v.AllowedActions {
		out.AllowedActions[i] = string(a)
	}
	return out
}

type UnmetRequirement struct {
	RequirementID string `json:"requirement_id"`
	Name          string `json:"name"`
	Reason        string `json:"reason"`
	LatestStatus  string `json:"latest_status,omitempty"`
}

type Gate struct {
	Scope     string             `json:"scope"`
	Satisfied bool               `json:"satisfied"`
	Checked   int                `json:"checked"`
	Unmet     []UnmetRequirement `json:"unmet"`
}

func FromGate(g workflow.GateResult) Gate {
	out := Gate{Scope: string(g.Scope), Satisfied: g.Satisfied, Checked: g.Checked, Unmet: make([]UnmetRequirement, len(g.Unmet))}
	for i, u := range g.Unmet {
		out.Unmet[i] = UnmetRequirement{RequirementID: u.RequirementID, Name: u.Name, Reason: u.Reason, LatestStatus: string(u.LatestStatus)}
	}
	return out
}

type GateReport struct {
	SubmissionID string `json:"submission_id"`
	StageID      string `json:"stage_id,omitempty"`
	Stage        Gate   `json:"stage"`
	Type         Gate   `json:"submission_type"`
}

func FromGateReport(r *service.GateReport) *GateReport {
	return &GateReport{SubmissionID: r.SubmissionID, StageID: r.StageID, Stage: FromGate(r.Stage), Type: FromGate(r.Type)}
}

type MissingRequirements struct {
	SubmissionID   string   `json:"submission_id"`
	RequirementIDs []string `json:"requirement_ids"`
}

type TrackingEntry struct {
	ID              string                 `json:"id"`
	StageID         *string                `json:"stage_id"`
	PreviousStageID *string                `json:"previous_stage_id,omitempty"`
	Action          string                 `json:"action"`
	EventType       string                 `json:"event_type"`
	Status          string                 `json:"status"`
	SourceStatus    string                 `json:"source_status"`
	TargetStatus    string                 `json:"target_status"`
	Comment         *string                `json:"comment,omitempty"`
	ProcessedBy     string                 `json:"processed_by"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

func FromEntry(e *workflow.TrackingEntry) *TrackingEntry {
	return &TrackingEntry{
		ID:              e.ID,
		StageID:         e.StageID,
		PreviousStageID: e.PreviousStageID,
		Action:          string(e.Action),
		EventType:       string(e.EventType),
		Status:          string(e.Status),
		SourceStatus:    string(e.SourceStatus),
		TargetStatus:    string(e.TargetStatus),
		Comment:         e.Comment,
		ProcessedBy:     e.ProcessedBy,
		Metadata:        e.Metadata,
		CreatedAt:       e.CreatedAt,
		ResolvedAt:      e.ResolvedAt,
	}
}

type TimelineGroup struct {
	StageID   string           `json:"stage_id"`
	StageName string           `json:"stage_name"`
	Entries   []*TrackingEntry `json:"entries"`
}

type Timeline struct {
	SubmissionID string          `json:"submission_id"`
	Groups       []TimelineGroup `json:"groups"`
}

func FromTimeline(t *service.Timeline) *Timeline {
	out := &Timeline{SubmissionID: t.SubmissionID, Groups: make([]TimelineGroup, len(t.Groups))}
	for i, g := range t.Groups {
		entries := make([]*TrackingEntry, len(g.Entries))
		for j, e := range g.Entries {
			entries[j] = FromEntry(e)
		}
		out.Groups[i] = TimelineGroup{StageID: g.StageID, StageName: g.StageName, Entries: entries}
	}
	return out
}

type SubmissionType struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"`
	CertificatePrefix string    `json:"certificate_prefix,omitempty"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

func FromType(t *workflow.SubmissionType) *SubmissionType {
	return &SubmissionType{
		ID:                t.ID,
		Code:              t.Code,
		Name:              t.Name,
		Kind:              string(t.Kind),
		CertificatePrefix: t.CertificatePrefix,
		Active:            t.Active,
		CreatedAt:         t.CreatedAt,
	}
}

type Stage struct {
	ID               string `json:"id"`
	SubmissionTypeID string `json:"submission_type_id"`
	Name             string `json:"name"`
	Order            int    `json:"order"`
	ReviewerRole     string `json:"reviewer_role,omitempty"`
	Active           bool   `json:"active"`
}

func FromStage(s *workflow.Stage) *Stage {
	return &Stage{
		ID:               s.ID,
		SubmissionTypeID: s.SubmissionTypeID,
		Name:             s.Name,
		Order:            s.Order,
		ReviewerRole:     s.ReviewerRole,
		Active:           s.Active,
	}
}

type Requirement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Order       int    `json:"order"`
	Active      bool   `json:"active"`
}

func FromRequirement(r *workflow.DocumentRequirement) *Requirement {
	return &Requirement{ID: r.ID, Name: r.Name, Description: r.Description, Required: r.Required, Order: r.Order, Active: r.Active}
}

type StageLink struct {
	ID            string `json:"id"`
	StageID       string `json:"stage_id"`
	RequirementID string `json:"requirement_id"`
	IsRequired    bool   `json:"is_required"`
	Order         int    `json:"order"`
}

func FromLink(l *workflow.StageRequirement) *StageLink {
	return &StageLink{ID: l.ID, StageID: l.StageID, RequirementID: l.RequirementID, IsRequired: l.IsRequired, Order: l.Order}
}

// TypeDefinition is a submission type with its stages, requirements and
// stage links keyed by stage id.
type TypeDefinition struct {
	Type         *SubmissionType         `json:"submission_type"`
	Stages       []*Stage                `json:"stages"`
	Requirements []*Requirement          `json:"requirements"`
	Links        map[string][]*StageLink `json:"stage_requirements"`
}

func FromDefinition(d *service.TypeDefinition) *TypeDefinition {
	out := &TypeDefinition{
		Type:         FromType(d.Type),
		Stages:       make([]*Stage, len(d.Stages)),
		Requirements: make([]*Requirement, len(d.Requirements)),
		Links:        make(map[string][]*StageLink, len(d.Links)),
	}
	for i, s := range d.Stages {
		out.Stages[i] = FromStage(s)
	}
	for i, r := range d.Requirements {
		out.Requirements[i] = FromRequirement(r)
	}
	for stageID, links := range d.Links {
		l := make([]*StageLink, len(links))
		for i, link := range links {
			l[i] = FromLink(link)
		}
		out.Links[stageID] = l
	}
	return out
}

// ErrorBody is the error envelope returned by both transports.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
