package workflow

import "sort"

// Graph is the linear stage sequence of one submission type. Only active
// stages participate; inactive stages can still be looked up by neighbours
// through their order value so stale references keep resolving.
type Graph struct {
	typeID string
	stages []*Stage
}

// NewGraph builds the graph for typeID from stages, discarding stages of
// other types and inactive ones. Stages are ordered by Order, then ID.
func NewGraph(typeID string, stages []*Stage) *Graph {
	active := make([]*Stage, 0, len(stages))
	for _, s := range stages {
		if s == nil || !s.Active || s.SubmissionTypeID != typeID {
			continue
		}
		active = append(active, s)
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Order != active[j].Order {
			return active[i].Order < active[j].Order
		}
		return active[i].ID < active[j].ID
	})
	return &Graph{typeID: typeID, stages: active}
}

// TypeID returns the submission type the graph belongs to.
func (g *Graph) TypeID() string { return g.typeID }

// Stages returns the active stages in order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, len(g.stages))
	copy(out, g.stages)
	return out
}

// Len returns the number of active stages.
func (g *Graph) Len() int { return len(g.stages) }

// Initial returns the first active stage, or nil.
func (g *Graph) Initial() *Stage {
	if len(g.stages) == 0 {
		return nil
	}
	return g.stages[0]
}

// Final returns the last active stage, or nil.
func (g *Graph) Final() *Stage {
	if len(g.stages) == 0 {
		return nil
	}
	return g.stages[len(g.stages)-1]
}

// Next returns the active stage following s, or nil when s is final.
func (g *Graph) Next(s *Stage) *Stage {
	if s == nil {
		return nil
	}
	for _, st := range g.stages {
		if after(st, s) {
			return st
		}
	}
	return nil
}

// Advance returns the stage after s. A final s yields a NoNextStageError,
// which callers take as the cue to complete instead.
func (g *Graph) Advance(s *Stage) (*Stage, error) {
	next := g.Next(s)
	if next == nil {
		id := ""
		if s != nil {
			id = s.ID
		}
		return nil, &NoNextStageError{StageID: id}
	}
	return next, nil
}

// Previous returns the active stage preceding s, or nil when s is initial.
func (g *Graph) Previous(s *Stage) *Stage {
	if s == nil {
		return nil
	}
	var prev *Stage
	for _, st := range g.stages {
		if !after(s, st) {
			break
		}
		prev = st
	}
	return prev
}

// IsInitialStage reports whether no active stage precedes s.
func (g *Graph) IsInitialStage(s *Stage) bool { return g.Previous(s) == nil }

// IsFinalStage reports whether no active stage follows s.
func (g *Graph) IsFinalStage(s *Stage) bool { return g.Next(s) == nil }

// Position returns the index of the stage with the given id among active
// stages, or -1.
func (g *Graph) Position(stageID string) int {
	for i, st := range g.stages {
		if st.ID == stageID {
			return i
		}
	}
	return -1
}

// Stage returns the active stage with the given id.
func (g *Graph) Stage(stageID string) (*Stage, bool) {
	if i := g.Position(stageID); i >= 0 {
		return g.stages[i], true
	}
	return nil, false
}

// after reports whether a sorts strictly after b.
func after(a, b *Stage) bool {
	if a.Order != b.Order {
		return a.Order > b.Order
	}
	return a.ID > b.ID
}
