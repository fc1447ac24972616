package edit_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/tasks"
)

func TestResolverIdentifierForms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Find me")

	resolver, err := h.engine.Resolver(tasks.EngineKey)
	if err != nil {
		t.Fatalf("Resolver failed: %v", err)
	}

	identifiers := []string{
		fmt.Sprint(task.ID),
		task.PHID,
		fmt.Sprintf("%s%d", tasks.Monogram, task.ID),
	}
	for _, identifier := range identifiers {
		t.Run(identifier, func(t *testing.T) {
			obj, err := resolver.Resolve(ctx, alice, identifier)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", identifier, err)
			}
			got := obj.(*tasks.Task)
			if got.PHID != task.PHID || got.ID != task.ID || got.Title != "Find me" {
				t.Errorf("resolved %+v", got)
			}
		})
	}
}

func TestResolverFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Private")

	out, err := h.engine.SubmitRPC(ctx, alice, "notes.note", edit.RPCRequest{
		Transactions: []edit.RPCTransaction{{Type: "note:body", Value: "hello"}},
	})
	n := mustOutcome[*edit.Saved](t, out, err)
	notePHID := n.Object.ObjectHeader().PHID
	noteName := fmt.Sprintf("N%d", n.Object.ObjectHeader().ID)

	resolver, _ := h.engine.Resolver(tasks.EngineKey)

	tests := []struct {
		name       string
		identifier string
		check      func(error) bool
	}{
		{name: "missing id", identifier: "999", check: edit.IsNotFound},
		{name: "missing monogram", identifier: "T999", check: edit.IsNotFound},
		{name: "unknown monogram", identifier: "Q1", check: edit.IsNotFound},
		{name: "garbage", identifier: "not a name", check: edit.IsNotFound},
		{name: "other type by monogram", identifier: noteName, check: edit.IsTypeMismatch},
		{name: "other type by phid", identifier: notePHID, check: edit.IsNotFound},
		{name: "zero id", identifier: "0", check: edit.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(ctx, alice, tt.identifier)
			if !tt.check(err) {
				t.Errorf("unexpected error for %q: %v", tt.identifier, err)
			}
		})
	}

	t.Run("denied looks like missing", func(t *testing.T) {
		h.checker.Deny(edit.CapabilityEdit)
		_, denied := resolver.Resolve(ctx, bob, task.PHID)
		_, missing := resolver.Resolve(ctx, bob, "PHID-TASK-doesnotexist00000")

		de, ok := edit.AsError(denied)
		if !ok || de.Class != edit.ErrorClassNotFound || de.Code != edit.ErrCodeObjectNotFound {
			t.Fatalf("expected not found, got %v", denied)
		}
		me, _ := edit.AsError(missing)
		if de.Class != me.Class || de.Code != me.Code {
			t.Errorf("denied (%s/%s) and missing (%s/%s) differ", de.Class, de.Code, me.Class, me.Code)
		}

		if _, err := resolver.Resolve(ctx, bob, task.PHID, edit.CapabilityView); err != nil {
			t.Errorf("view-only resolution failed: %v", err)
		}
	})
}

func TestResolverChecksPolicySubject(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, "Subject")
	resolver, _ := h.engine.Resolver(tasks.EngineKey)

	if _, err := resolver.Resolve(context.Background(), bob, task.PHID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	last := h.checker.subjects[len(h.checker.subjects)-1]
	if last.PHID != task.PHID || last.AuthorPHID != alice.PHID || last.ObjectType != tasks.PHIDType {
		t.Errorf("unexpected subject %+v", last)
	}
}

func TestMonogramIndex(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, "Named")
	index := edit.MonogramIndex{Registry: h.reg, Store: h.store}

	phid, err := index.ResolveName(context.Background(), fmt.Sprintf("T%d", task.ID))
	if err != nil || phid != task.PHID {
		t.Fatalf("ResolveName = %q, %v", phid, err)
	}
	for _, name := range []string{"T0", "t1", "T", "TT"} {
		if _, err := index.ResolveName(context.Background(), name); !edit.IsNotFound(err) {
			t.Errorf("ResolveName(%q): expected not found, got %v", name, err)
		}
	}
}

func TestPHIDs(t *testing.T) {
	phid := edit.NewPHID(tasks.PHIDType)
	if !edit.IsPHID(phid) || edit.PHIDType(phid) != tasks.PHIDType {
		t.Errorf("bad PHID %q", phid)
	}
	if !strings.HasPrefix(phid, "PHID-TASK-") {
		t.Errorf("unexpected prefix in %q", phid)
	}
	if edit.NewPHID(tasks.PHIDType) == phid {
		t.Error("PHIDs must be unique")
	}
	if edit.IsPHID("PHID-TOOLONG-x") || edit.PHIDType("T1") != "" {
		t.Error("malformed ids accepted")
	}
}

func TestDecodeObject(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, "Decoded", edit.RPCTransaction{Type: tasks.TypeProjects, Value: []any{"web"}})
	loaded := h.loadTask(t, task.PHID)
	if loaded.ID != task.ID || loaded.AuthorPHID != alice.PHID || len(loaded.Projects) != 1 {
		t.Errorf("decoded %+v", loaded)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("timestamps were not restored")
	}
}
