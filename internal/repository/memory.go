package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// MemoryStore is an in-process Store. Transactions are serialized and run
// against a private copy of the state that replaces the committed state only
// when fn succeeds, so a failed unit of work leaves no trace.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), faults: make(map[string]error)}
}

// InjectFault makes the next call of op (e.g. "tracking.append") fail with
// err inside whatever transaction performs it.
func (m *MemoryStore) InjectFault(op string, err error) {
	m.mu.Lock()
	m.faults[op] = err
	m.mu.Unlock()
}

// InTransaction implements Store.
func (m *MemoryStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	tx := &memTx{st: work, store: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) fault(op string) error {
	if err, ok := m.faults[op]; ok {
		delete(m.faults, op)
		return err
	}
	return nil
}

type memState struct {
	types       map[string]*workflow.SubmissionType
	stages      map[string]*workflow.Stage
	reqs        map[string]*workflow.DocumentRequirement
	links       map[string]*workflow.StageRequirement
	subs        map[string]*workflow.Submission
	docs        map[string]*workflow.SubmissionDocument
	assignments map[string]*workflow.WorkflowAssignment
	entries     []*workflow.TrackingEntry
	outbox      []*OutboxMessage
	certSeq     map[string]int
	seq         int64
}

func newMemState() *memState {
	return &memState{
		types:       make(map[string]*workflow.SubmissionType),
		stages:      make(map[string]*workflow.Stage),
		reqs:        make(map[string]*workflow.DocumentRequirement),
		links:       make(map[string]*workflow.StageRequirement),
		subs:        make(map[string]*workflow.Submission),
		docs:        make(map[string]*workflow.SubmissionDocument),
		assignments: make(map[string]*workflow.WorkflowAssignment),
		certSeq:     make(map[string]int),
	}
}

// clone copies every record. Records are treated as values: repositories
// hand out copies and never write through pointers they share.
func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.types {
		cp := *v
		c.types[k] = &cp
	}
	for k, v := range s.stages {
		cp := *v
		c.stages[k] = &cp
	}
	for k, v := range s.reqs {
		cp := *v
		c.reqs[k] = &cp
	}
	for k, v := range s.links {
		cp := *v
		c.links[k] = &cp
	}
	for k, v := range s.subs {
		c.subs[k] = v.Clone()
	}
	for k, v := range s.docs {
		cp := *v
		c.docs[k] = &cp
	}
	for k, v := range s.assignments {
		cp := *v
		c.assignments[k] = &cp
	}
	c.entries = make([]*workflow.TrackingEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		c.entries[i] = &cp
	}
	c.outbox = make([]*OutboxMessage, len(s.outbox))
	for i, o := range s.outbox {
		cp := *o
		c.outbox[i] = &cp
	}
	for k, v := range s.certSeq {
		c.certSeq[k] = v
	}
	c.seq = s.seq
	return c
}

func (s *memState) nextSeq() int64 {
	s.seq++
	return s.seq
}

type memTx struct {
	st    *memState
	store *MemoryStore
}

func (t *memTx) Catalog() CatalogRepository { return memCatalog{t} }
func (t *memTx) Submissions() SubmissionRepository { return memSubmissions{t} }
func (t *memTx) Documents() DocumentRepository { return memDocuments{t} }
func (t *memTx) Assignments() AssignmentRepository { return memAssignments{t} }
func (t *memTx) Tracking() TrackingRepository { return memTracking{t} }
func (t *memTx) Outbox() OutboxRepository { return memOutbox{t} }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// ── catalog ──────────────────────────────────────────────────────────────────

type memCatalog struct{ t *memTx }

func (r memCatalog) CreateType(ctx context.Context, st *workflow.SubmissionType) error {
	if err := r.t.store.fault("catalog.create_type"); err != nil {
		return err
	}
	for _, existing := range r.t.st.types {
		if existing.Code == st.Code {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("submission type code %q already exists", st.Code))
		}
	}
	st.ID = newID(st.ID)
	cp := *st
	r.t.st.types[st.ID] = &cp
	return nil
}

func (r memCatalog) GetType(ctx context.Context, id string) (*workflow.SubmissionType, error) {
	st, ok := r.t.st.types[id]
	if !ok {
		return nil, errors.NotFound("submission_type", id)
	}
	cp := *st
	return &cp, nil
}

func (r memCatalog) GetTypeByCode(ctx context.Context, code string) (*workflow.SubmissionType, error) {
	for _, st := range r.t.st.types {
		if st.Code == code {
			cp := *st
			return &cp, nil
		}
	}
	return nil, errors.NotFound("submission_type", code)
}

func (r memCatalog) ListTypes(ctx context.Context) ([]*workflow.SubmissionType, error) {
	out := make([]*workflow.SubmissionType, 0, len(r.t.st.types))
	for _, st := range r.t.st.types {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// DeleteType removes the type with its stages, requirements and links.
func (r memCatalog) DeleteType(ctx context.Context, id string) error {
	if _, ok := r.t.st.types[id]; !ok {
		return errors.NotFound("submission_type", id)
	}
	delete(r.t.st.types, id)
	for sid, s := range r.t.st.stages {
		if s.SubmissionTypeID != id {
			continue
		}
		for lid, l := range r.t.st.links {
			if l.StageID == sid {
				delete(r.t.st.links, lid)
			}
		}
		delete(r.t.st.stages, sid)
	}
	for rid, q := range r.t.st.reqs {
		if q.SubmissionTypeID == id {
			delete(r.t.st.reqs, rid)
		}
	}
	return nil
}

func (r memCatalog) CreateStage(ctx context.Context, s *workflow.Stage) error {
	if _, ok := r.t.st.types[s.SubmissionTypeID]; !ok {
		return errors.NotFound("submission_type", s.SubmissionTypeID)
	}
	for _, existing := range r.t.st.stages {
		if existing.SubmissionTypeID == s.SubmissionTypeID && existing.Order == s.Order {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("stage order %d already used", s.Order))
		}
	}
	s.ID = newID(s.ID)
	cp := *s
	r.t.st.stages[s.ID] = &cp
	return nil
}

func (r memCatalog) UpdateStage(ctx context.Context, s *workflow.Stage) error {
	if _, ok := r.t.st.stages[s.ID]; !ok {
		return errors.NotFound("stage", s.ID)
	}
	for _, existing := range r.t.st.stages {
		if existing.ID != s.ID && existing.SubmissionTypeID == s.SubmissionTypeID && existing.Order == s.Order {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("stage order %d already used", s.Order))
		}
	}
	cp := *s
	r.t.st.stages[s.ID] = &cp
	return nil
}

func (r memCatalog) GetStage(ctx context.Context, id string) (*workflow.Stage, error) {
	s, ok := r.t.st.stages[id]
	if !ok {
		return nil, errors.NotFound("stage", id)
	}
	cp := *s
	return &cp, nil
}

func (r memCatalog) ListStages(ctx context.Context, typeID string) ([]*workflow.Stage, error) {
	var out []*workflow.Stage
	for _, s := range r.t.st.stages {
		if s.SubmissionTypeID == typeID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r memCatalog) CreateRequirement(ctx context.Context, q *workflow.DocumentRequirement) error {
	if _, ok := r.t.st.types[q.SubmissionTypeID]; !ok {
		return errors.NotFound("submission_type", q.SubmissionTypeID)
	}
	q.ID = newID(q.ID)
	cp := *q
	r.t.st.reqs[q.ID] = &cp
	return nil
}

func (r memCatalog) GetRequirement(ctx context.Context, id string) (*workflow.DocumentRequirement, error) {
	q, ok := r.t.st.reqs[id]
	if !ok {
		return nil, errors.NotFound("document_requirement", id)
	}
	cp := *q
	return &cp, nil
}

func (r memCatalog) ListRequirements(ctx context.Context, typeID string) ([]*workflow.DocumentRequirement, error) {
	var out []*workflow.DocumentRequirement
	for _, q := range r.t.st.reqs {
		if q.SubmissionTypeID == typeID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memCatalog) AttachRequirement(ctx context.Context, l *workflow.StageRequirement) error {
	if _, ok := r.t.st.stages[l.StageID]; !ok {
		return errors.NotFound("stage", l.StageID)
	}
	if _, ok := r.t.st.reqs[l.RequirementID]; !ok {
		return errors.NotFound("document_requirement", l.RequirementID)
	}
	for _, existing := range r.t.st.links {
		if existing.StageID == l.StageID && existing.RequirementID == l.RequirementID {
			return errors.New(errors.ErrCodeConflict, "requirement already attached to stage")
		}
	}
	l.ID = newID(l.ID)
	cp := *l
	r.t.st.links[l.ID] = &cp
	return nil
}

func (r memCatalog) ListStageRequirements(ctx context.Context, stageID string) ([]*workflow.StageRequirement, error) {
	var out []*workflow.StageRequirement
	for _, l := range r.t.st.links {
		if l.StageID == stageID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// ── submissions ──────────────────────────────────────────────────────────────

type memSubmissions struct{ t *memTx }

func (r memSubmissions) Create(ctx context.Context, s *workflow.Submission) error {
	if err := r.t.store.fault("submissions.create"); err != nil {
		return err
	}
	s.ID = newID(s.ID)
	if s.Version == 0 {
		s.Version = 1
	}
	r.t.st.subs[s.ID] = s.Clone()
	return nil
}

func (r memSubmissions) Get(ctx context.Context, id string) (*workflow.Submission, error) {
	s, ok := r.t.st.subs[id]
	if !ok {
		return nil, errors.NotFound("submission", id)
	}
	return s.Clone(), nil
}

// GetForUpdate needs no extra locking: memory transactions are serialized.
func (r memSubmissions) GetForUpdate(ctx context.Context, id string) (*workflow.Submission, error) {
	if err := r.t.store.fault("submissions.lock"); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r memSubmissions) Update(ctx context.Context, s *workflow.Submission) error {
	if err := r.t.store.fault("submissions.update"); err != nil {
		return err
	}
	stored, ok := r.t.st.subs[s.ID]
	if !ok {
		return errors.NotFound("submission", s.ID)
	}
	if stored.Version != s.Version {
		return &workflow.ConcurrentModificationError{
			SubmissionID: s.ID,
			Reason:       fmt.Sprintf("version %d is stale (current %d)", s.Version, stored.Version),
		}
	}
	s.Version++
	r.t.st.subs[s.ID] = s.Clone()
	return nil
}

func (r memSubmissions) CountByType(ctx context.Context, typeID string) (int, error) {
	n := 0
	for _, s := range r.t.st.subs {
		if s.SubmissionTypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (r memSubmissions) NextCertificateSequence(ctx context.Context, typeID string, year int) (int, error) {
	key := fmt.Sprintf("%s/%d", typeID, year)
	r.t.st.certSeq[key]++
	return r.t.st.certSeq[key], nil
}

// ── documents ────────────────────────────────────────────────────────────────

type memDocuments struct{ t *memTx }

func (r memDocuments) Create(ctx context.Context, d *workflow.SubmissionDocument) error {
	if err := r.t.store.fault("documents.create"); err != nil {
		return err
	}
	d.ID = newID(d.ID)
	d.Seq = r.t.st.nextSeq()
	cp := *d
	r.t.st.docs[d.ID] = &cp
	return nil
}

func (r memDocuments) Get(ctx context.Context, id string) (*workflow.SubmissionDocument, error) {
	d, ok := r.t.st.docs[id]
	if !ok {
		return nil, errors.NotFound("submission_document", id)
	}
	cp := *d
	return &cp, nil
}

func (r memDocuments) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.SubmissionDocument, error) {
	var out []*workflow.SubmissionDocument
	for _, d := range r.t.st.docs {
		if d.SubmissionID == submissionID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r memDocuments) UpdateStatus(ctx context.Context, id string, status workflow.DocumentStatus, notes *string, at time.Time) error {
	if err := r.t.store.fault("documents.update_status"); err != nil {
		return err
	}
	d, ok := r.t.st.docs[id]
	if !ok {
		return errors.NotFound("submission_document", id)
	}
	d.Status = status
	d.Notes = notes
	d.UpdatedAt = at
	return nil
}

// ── assignments ──────────────────────────────────────────────────────────────

type memAssignments struct{ t *memTx }

func (r memAssignments) Create(ctx context.Context, a *workflow.WorkflowAssignment) error {
	if err := r.t.store.fault("assignments.create"); err != nil {
		return err
	}
	for _, existing := range r.t.st.assignments {
		if existing.SubmissionID == a.SubmissionID && existing.StageID == a.StageID && existing.Open() {
			return errors.New(errors.ErrCodeConflict, "stage already has an active assignment")
		}
	}
	a.ID = newID(a.ID)
	cp := *a
	r.t.st.assignments[a.ID] = &cp
	return nil
}

func (r memAssignments) forStage(submissionID, stageID string) []*workflow.WorkflowAssignment {
	var out []*workflow.WorkflowAssignment
	for _, a := range r.t.st.assignments {
		if a.SubmissionID == submissionID && a.StageID == stageID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out
}

func sortAssignments(as []*workflow.WorkflowAssignment) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].AssignedAt.Equal(as[j].AssignedAt) {
			return as[i].AssignedAt.Before(as[j].AssignedAt)
		}
		return as[i].ID < as[j].ID
	})
}

func (r memAssignments) GetActive(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error) {
	for _, a := range r.forStage(submissionID, stageID) {
		if a.Open() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memAssignments) Latest(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error) {
	all := r.forStage(submissionID, stageID)
	if len(all) == 0 {
		return nil, nil
	}
	cp := *all[len(all)-1]
	return &cp, nil
}

func (r memAssignments) Complete(ctx context.Context, id string, status workflow.AssignmentStatus, completedBy string, notes *string, at time.Time) error {
	if err := r.t.store.fault("assignments.complete"); err != nil {
		return err
	}
	a, ok := r.t.st.assignments[id]
	if !ok {
		return errors.NotFound("workflow_assignment", id)
	}
	if !a.Open() {
		return errors.New(errors.ErrCodeConflict, "assignment already completed")
	}
	a.Status = status
	a.Notes = notes
	a.CompletedAt = &at
	a.CompletedBy = &completedBy
	return nil
}

func (r memAssignments) Reassign(ctx context.Context, id string, reviewerID *string, at time.Time) error {
	a, ok := r.t.st.assignments[id]
	if !ok {
		return errors.NotFound("workflow_assignment", id)
	}
	a.ReviewerID = reviewerID
	a.AssignedAt = at
	return nil
}

func (r memAssignments) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.WorkflowAssignment, error) {
	var out []*workflow.WorkflowAssignment
	for _, a := range r.t.st.assignments {
		if a.SubmissionID == submissionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (r memAssignments) CountActiveFromOrder(ctx context.Context, typeID string, order int) (int, error) {
	n := 0
	for _, a := range r.t.st.assignments {
		if !a.Open() {
			continue
		}
		s, ok := r.t.st.stages[a.StageID]
		if ok && s.SubmissionTypeID == typeID && s.Order >= order {
			n++
		}
	}
	return n, nil
}

// ── tracking ─────────────────────────────────────────────────────────────────

type memTracking struct{ t *memTx }

func (r memTracking) Append(ctx context.Context, e *workflow.TrackingEntry) error {
	if err := r.t.store.fault("tracking.append"); err != nil {
		return err
	}
	e.ID = newID(e.ID)
	e.Seq = r.t.st.nextSeq()
	cp := *e
	r.t.st.entries = append(r.t.st.entries, &cp)
	return nil
}

func (r memTracking) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.TrackingEntry, error) {
	var out []*workflow.TrackingEntry
	for _, e := range r.t.st.entries {
		if e.SubmissionID == submissionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r memTracking) ResolveOpen(ctx context.Context, submissionID string, status workflow.Status, at time.Time) (int, error) {
	n := 0
	for i, e := range r.t.st.entries {
		if e.SubmissionID != submissionID || e.Status != status || e.ResolvedAt != nil || !e.EventType.ResolvedByRevision() {
			continue
		}
		cp := *e
		resolved := at
		cp.ResolvedAt = &resolved
		r.t.st.entries[i] = &cp
		n++
	}
	return n, nil
}

// ── outbox ───────────────────────────────────────────────────────────────────

type memOutbox struct{ t *memTx }

func (r memOutbox) Enqueue(ctx context.Context, events []workflow.Event) error {
	if err := r.t.store.fault("outbox.enqueue"); err != nil {
		return err
	}
	for _, ev := range events {
		ev.ID = newID(ev.ID)
		r.t.st.outbox = append(r.t.st.outbox, &OutboxMessage{Event: ev})
	}
	return nil
}

func (r memOutbox) ClaimPending(ctx context.Context, limit, maxAttempts int, now time.Time, lease time.Duration) ([]*OutboxMessage, error) {
	var out []*OutboxMessage
	for _, m := range r.t.st.outbox {
		if m.DeliveredAt != nil || m.Attempts >= maxAttempts {
			continue
		}
		if m.ClaimedUntil != nil && m.ClaimedUntil.After(now) {
			continue
		}
		if lease > 0 {
			until := now.Add(lease)
			m.ClaimedUntil = &until
		}
		cp := *m
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memOutbox) find(id string) (*OutboxMessage, error) {
	for _, m := range r.t.st.outbox {
		if m.Event.ID == id {
			return m, nil
		}
	}
	return nil, errors.NotFound("outbox_event", id)
}

func (r memOutbox) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	m, err := r.find(id)
	if err != nil {
		return err
	}
	m.Attempts++
	m.LastAttemptAt = &at
	m.DeliveredAt = &at
	m.ClaimedUntil = nil
	return nil
}

func (r memOutbox) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	m, err := r.find(id)
	if err != nil {
		return err
	}
	m.Attempts++
	m.LastError = &reason
	m.LastAttemptAt = &at
	m.ClaimedUntil = nil
	return nil
}
