package workflow

import (
	"errors"
	"testing"
)

func stage(id string, order int, active bool) *Stage {
	return &Stage{ID: id, SubmissionTypeID: "patent", Name: id, Order: order, Active: active}
}

func TestGraphNeighbours(t *testing.T) {
	intake := stage("intake", 1, true)
	formal := stage("formal", 2, true)
	retired := stage("retired", 3, false)
	substantive := stage("substantive", 4, true)
	foreign := &Stage{ID: "tm-intake", SubmissionTypeID: "trademark", Order: 0, Active: true}

	g := NewGraph("patent", []*Stage{substantive, retired, formal, foreign, intake})

	if g.Len() != 3 {
		t.Fatalf("expected 3 active stages, got %d", g.Len())
	}
	if g.Initial() != intake || g.Final() != substantive {
		t.Fatalf("unexpected boundaries: %v %v", g.Initial().ID, g.Final().ID)
	}
	if next := g.Next(intake); next != formal {
		t.Fatalf("next(intake) = %v", next)
	}
	if next := g.Next(formal); next != substantive {
		t.Fatalf("next(formal) should skip inactive stage, got %v", next)
	}
	if g.Next(substantive) != nil {
		t.Fatalf("final stage must have no next")
	}
	if prev := g.Previous(substantive); prev != formal {
		t.Fatalf("previous(substantive) = %v", prev)
	}
	if g.Previous(intake) != nil {
		t.Fatalf("initial stage must have no previous")
	}
	if !g.IsInitialStage(intake) || g.IsInitialStage(formal) {
		t.Fatalf("IsInitialStage mismatch")
	}
	if !g.IsFinalStage(substantive) || g.IsFinalStage(formal) {
		t.Fatalf("IsFinalStage mismatch")
	}
}

func TestGraphToleratesStaleInactiveStage(t *testing.T) {
	intake := stage("intake", 1, true)
	retired := stage("retired", 2, false)
	final := stage("final", 3, true)
	g := NewGraph("patent", []*Stage{intake, retired, final})

	if g.Position(retired.ID) != -1 {
		t.Fatalf("inactive stage must not have a position")
	}
	if g.Next(retired) != final {
		t.Fatalf("next of stale stage should resolve by order")
	}
	if g.Previous(retired) != intake {
		t.Fatalf("previous of stale stage should resolve by order")
	}
}

func TestEmptyGraph(t *testing.T) {
	g := NewGraph("patent", nil)
	s := stage("x", 1, false)
	if g.Initial() != nil || g.Final() != nil || g.Next(s) != nil || g.Previous(s) != nil {
		t.Fatalf("empty graph lookups must all be nil")
	}
	if !g.IsFinalStage(s) {
		t.Fatalf("no next stage means final")
	}
}

func TestGraphOrderTieBreaksOnID(t *testing.T) {
	a := stage("a", 1, true)
	b := stage("b", 1, true)
	g := NewGraph("patent", []*Stage{b, a})
	if g.Initial() != a || g.Next(a) != b {
		t.Fatalf("equal orders should sort by id")
	}
}

func TestGraphAdvanceSignalsFinalStage(t *testing.T) {
	intake := stage("intake", 1, true)
	formal := stage("formal", 2, true)
	g := NewGraph("patent", []*Stage{intake, formal})

	if next, err := g.Advance(intake); err != nil || next != formal {
		t.Fatalf("advance(intake) = %v, %v", next, err)
	}
	_, err := g.Advance(formal)
	var final *NoNextStageError
	if !errors.As(err, &final) || final.StageID != "formal" {
		t.Fatalf("expected NoNextStageError for formal, got %v", err)
	}
}
