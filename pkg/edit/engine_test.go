package edit_test

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/extensions"
	"github.com/openfroyo/editengine/pkg/tasks"
)

func transactionTypes(txns []*edit.Transaction) []string {
	types := make([]string, 0, len(txns))
	for _, txn := range txns {
		types = append(types, txn.Type)
	}
	return types
}

func TestSubmitRPCCreate(t *testing.T) {
	h := newHarness(t)
	out, err := h.engine.SubmitRPC(context.Background(), alice, tasks.EngineKey, edit.RPCRequest{
		Transactions: []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "A"}},
	})
	saved := mustOutcome[*edit.Saved](t, out, err)

	if !saved.Created {
		t.Error("expected Created")
	}
	if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{edit.TypeCreate, tasks.TypeTitle}) {
		t.Fatalf("unexpected transactions %v", got)
	}
	resp := saved.RPCResponse()
	if resp.Transactions[0].ID >= resp.Transactions[1].ID {
		t.Errorf("transaction ids out of order: %+v", resp.Transactions)
	}
	task := saved.Object.(*tasks.Task)
	if resp.Object.ID != task.ID || resp.Object.PHID != task.PHID {
		t.Errorf("unexpected object ref %+v", resp.Object)
	}
	if want := fmt.Sprintf("/tasks/T%d", task.ID); saved.URI != want {
		t.Errorf("expected URI %s, got %s", want, saved.URI)
	}
	if stored := h.loadTask(t, task.PHID); stored.Title != "A" || stored.Status != tasks.StatusOpen {
		t.Errorf("stored %+v", stored)
	}
	if last := h.observer.outcomes[len(h.observer.outcomes)-1]; last != "saved" {
		t.Errorf("observer outcome %s", last)
	}
}

func TestSubmitRPCRejectsUnknownTypes(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, "Existing")
	objects, txns := h.store.ObjectCount(), h.store.TransactionCount()

	out, err := h.engine.SubmitRPC(context.Background(), alice, tasks.EngineKey, edit.RPCRequest{
		ObjectIdentifier: task.PHID,
		Transactions: []edit.RPCTransaction{
			{Type: tasks.TypeTitle, Value: "Renamed"},
			{Type: "task:colour", Value: "red"},
		},
	})
	invalid := mustOutcome[*edit.Invalid](t, out, err)

	msg, ok := invalid.MessageFor("task:colour")
	if !ok || !strings.Contains(msg, "valid types are") || !strings.Contains(msg, tasks.TypeTitle) {
		t.Errorf("unexpected message %q", msg)
	}
	if invalid.Err.Code != edit.ErrCodeUnknownType {
		t.Errorf("expected code %s, got %s", edit.ErrCodeUnknownType, invalid.Err.Code)
	}
	if h.store.ObjectCount() != objects || h.store.TransactionCount() != txns {
		t.Error("rejected batch changed the store")
	}
	if h.loadTask(t, task.PHID).Title != "Existing" {
		t.Error("title changed")
	}
}

func TestSubmitRPCEdits(t *testing.T) {
	ctx := context.Background()

	t.Run("applies in order", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Edit me")
		out, err := h.engine.SubmitRPC(ctx, bob, tasks.EngineKey, edit.RPCRequest{
			ObjectIdentifier: fmt.Sprintf("T%d", task.ID),
			Transactions: []edit.RPCTransaction{
				{Type: tasks.TypePoints, Value: 3.0},
				{Type: tasks.TypeProjects, Value: []any{"web", "api"}},
				{Type: edit.TypeComment, Value: "Estimated"},
			},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if saved.Created {
			t.Error("edit reported creation")
		}
		want := []string{tasks.TypePoints, tasks.TypeProjects, edit.TypeComment}
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		stored := h.loadTask(t, task.PHID)
		if stored.Points != 3 || !reflect.DeepEqual(stored.Projects, []string{"web", "api"}) {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("no effect succeeds without persisting", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Same")
		before := h.store.TransactionCount()
		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			ObjectIdentifier: task.PHID,
			Transactions:     []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "Same"}},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if len(saved.Transactions) != 0 || h.store.TransactionCount() != before {
			t.Error("no-op batch persisted transactions")
		}
	})

	t.Run("bad value", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Typed")
		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			ObjectIdentifier: task.PHID,
			Transactions:     []edit.RPCTransaction{{Type: tasks.TypePoints, Value: "lots"}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if _, ok := invalid.MessageFor(tasks.TypePoints); !ok {
			t.Errorf("expected a points error, got %+v", invalid.Errors)
		}
	})

	t.Run("out of range integer", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			Transactions: []edit.RPCTransaction{
				{Type: tasks.TypeTitle, Value: "Huge"},
				{Type: tasks.TypePoints, Value: 1e20},
			},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		msg, ok := invalid.MessageFor(tasks.TypePoints)
		if !ok {
			t.Fatalf("expected a points error, got %+v", invalid.Errors)
		}
		if !strings.Contains(msg, "expected an integer") {
			t.Errorf("expected an invalid integer message, got %q", msg)
		}
		if h.store.ObjectCount() != 0 {
			t.Error("invalid create persisted an object")
		}
	})

	t.Run("subscribers extension", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Watched", edit.RPCTransaction{Type: extensions.TypeSubscribers, Value: []any{"PHID-USER-bob"}})
		if got := h.loadTask(t, task.PHID).Subscribers; !reflect.DeepEqual(got, []string{"PHID-USER-bob"}) {
			t.Errorf("subscribers %v", got)
		}

		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			ObjectIdentifier: task.PHID,
			Transactions:     []edit.RPCTransaction{{Type: extensions.TypeSubscribers, Value: []any{"bob"}}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if msg, _ := invalid.MessageFor(extensions.TypeSubscribers); !strings.Contains(msg, "does not satisfy") {
			t.Errorf("unexpected message %q", msg)
		}
	})

	t.Run("create denied", func(t *testing.T) {
		h := newHarness(t)
		h.checker.Deny(edit.CapabilityCreate)
		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			Transactions: []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "Nope"}},
		})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Reason != edit.ErrorClassNotFound || rejected.Code != edit.ErrCodeCreateDenied {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitRPC(ctx, alice, "wiki.page", edit.RPCRequest{})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Code != edit.ErrCodeEngineNotFound {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
			ObjectIdentifier: "T404",
			Transactions:     []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "Ghost"}},
		})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Code != edit.ErrCodeObjectNotFound {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})
}

func TestSubmitFormCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("saves changed fields", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			Form: url.Values{
				"title":    {"From form"},
				"priority": {tasks.PriorityHigh},
				"projects": {"web", "", "api"},
			},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		want := []string{edit.TypeCreate, tasks.TypeTitle, tasks.TypePriority, tasks.TypeProjects}
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		stored := h.loadTask(t, saved.Object.ObjectHeader().PHID)
		if stored.Priority != tasks.PriorityHigh || !reflect.DeepEqual(stored.Projects, []string{"web", "api"}) {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("missing required title", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			Form: url.Values{"description": {"no title"}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if msg, ok := invalid.MessageFor(tasks.TypeTitle); !ok || !strings.Contains(msg, "required") {
			t.Errorf("unexpected message %q", msg)
		}
		if h.store.ObjectCount() != 0 {
			t.Error("invalid form created an object")
		}
	})

	t.Run("configured form", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			ConfigKey: "bug",
			Form:      url.Values{"title": {"Crash on save"}, "points": {"8"}},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		stored := saved.Object.(*tasks.Task)
		if stored.Points != 0 {
			t.Errorf("hidden field read form input: %d", stored.Points)
		}
		if stored.Priority != tasks.PriorityHigh {
			t.Errorf("expected configured priority, got %s", stored.Priority)
		}
		for _, txn := range saved.Transactions {
			if txn.Type == tasks.TypePriority && !txn.IsDefault {
				t.Error("configured default should be flagged as default")
			}
			if txn.Type == tasks.TypeTitle && txn.IsDefault {
				t.Error("submitted title flagged as default")
			}
		}
	})

	t.Run("bad form value", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			Form: url.Values{"title": {"Pointy"}, "points": {"many"}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if _, ok := invalid.MessageFor(tasks.TypePoints); !ok {
			t.Errorf("expected points error, got %+v", invalid.Errors)
		}
	})
}

func TestSubmitFormEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("absent keys keep values", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Keep", edit.RPCTransaction{Type: tasks.TypeDescription, Value: "keep me"})
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			Form:             url.Values{"title": {"Kept"}, "comment": {"Renamed it"}},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{tasks.TypeTitle, edit.TypeComment}) {
			t.Errorf("unexpected transactions %v", got)
		}
		stored := h.loadTask(t, task.PHID)
		if stored.Title != "Kept" || stored.Description != "keep me" {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("no effect", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Still")
		req := &edit.Request{ObjectIdentifier: task.PHID, Form: url.Values{"title": {"Still"}}}

		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, req)
		noEffect := mustOutcome[*edit.NoEffect](t, out, err)
		if noEffect.URI == "" || noEffect.Object.ObjectHeader().PHID != task.PHID {
			t.Errorf("unexpected outcome %+v", noEffect)
		}

		req.Continue = true
		out, err = h.engine.SubmitForm(ctx, alice, tasks.EngineKey, req)
		saved := mustOutcome[*edit.Saved](t, out, err)
		if len(saved.Transactions) != 0 {
			t.Error("continued no-op persisted transactions")
		}
	})

	t.Run("edit denied", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Guarded")
		h.checker.Deny(edit.CapabilityEdit)
		out, err := h.engine.SubmitForm(ctx, bob, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			Form:             url.Values{"title": {"Hijacked"}},
		})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Reason != edit.ErrorClassNotFound {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})
}

func TestSubmitFormEditActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Actions")

	tests := []struct {
		action     edit.EditAction
		wantReason edit.ErrorClass
		wantCode   string
	}{
		{action: edit.EditActionNoDefault, wantReason: edit.ErrorClassNoUsableConfiguration, wantCode: edit.ErrCodeNoDefaultCreate},
		{action: edit.EditActionNoCreate, wantReason: edit.ErrorClassPermission, wantCode: edit.ErrCodeCreateDenied},
		{action: edit.EditActionNoManage, wantReason: edit.ErrorClassPermission, wantCode: edit.ErrCodeManageDenied},
		{action: "bogus", wantReason: edit.ErrorClassValidation, wantCode: edit.ErrCodeInvalidValue},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{EditAction: tt.action})
			rejected := mustOutcome[*edit.Rejected](t, out, err)
			if rejected.Reason != tt.wantReason || rejected.Code != tt.wantCode {
				t.Errorf("got %s/%s", rejected.Reason, rejected.Code)
			}
		})
	}

	t.Run("parameters", func(t *testing.T) {
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{EditAction: edit.EditActionParameters})
		mustOutcome[*edit.Documentation](t, out, err)
	})

	t.Run("comment", func(t *testing.T) {
		out, err := h.engine.SubmitForm(ctx, alice, tasks.EngineKey, &edit.Request{
			EditAction:       edit.EditActionComment,
			ObjectIdentifier: task.PHID,
			CommentText:      "Via form",
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{edit.TypeComment}) {
			t.Errorf("unexpected transactions %v", got)
		}
	})
}

func TestSubmitParameters(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitParameters(ctx, alice, tasks.EngineKey, &edit.Request{
			Params: url.Values{
				"title":    {"Params"},
				"tags":     {"web,api"},
				"assign":   {"PHID-USER-bob"},
				"projects": {"ignored"},
			},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		stored := h.loadTask(t, saved.Object.ObjectHeader().PHID)
		if !reflect.DeepEqual(stored.Projects, []string{"web", "api"}) || stored.OwnerPHID != "PHID-USER-bob" {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("create still requires title", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitParameters(ctx, alice, tasks.EngineKey, &edit.Request{
			Params: url.Values{"priority": {tasks.PriorityLow}},
		})
		mustOutcome[*edit.Invalid](t, out, err)
	})

	t.Run("edit tolerates missing fields", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Tolerant")
		out, err := h.engine.SubmitParameters(ctx, alice, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			Params:           url.Values{"priority": {tasks.PriorityLow}},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{tasks.TypePriority}) {
			t.Errorf("unexpected transactions %v", got)
		}
	})

	t.Run("rule violation", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Owned")
		out, err := h.engine.SubmitParameters(ctx, alice, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			Params:           url.Values{"assign": {"bob"}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if _, ok := invalid.MessageFor(tasks.TypeOwner); !ok {
			t.Errorf("expected owner error, got %+v", invalid.Errors)
		}
	})
}

func TestParameterDocs(t *testing.T) {
	h := newHarness(t)
	h.checker.Deny(edit.CapabilityCreate)

	out, err := h.engine.ParameterDocs(context.Background(), alice, tasks.EngineKey)
	doc := mustOutcome[*edit.Documentation](t, out, err)

	if doc.Configuration != edit.DefaultConfigurationKey || doc.EngineKey != tasks.EngineKey {
		t.Errorf("unexpected doc header %+v", doc)
	}
	keys := map[string]edit.ParameterDoc{}
	for _, p := range doc.Parameters {
		keys[p.Key] = p
	}
	for _, key := range []string{"title", "assign", "tags", "subscribers", "comment"} {
		if _, ok := keys[key]; !ok {
			t.Errorf("parameter %s missing from %v", key, doc.Parameters)
		}
	}
	if _, ok := keys["owner"]; ok {
		t.Error("field keys must not be documented as parameters")
	}
	if p := keys["title"]; !p.Required || p.Type != "string" || p.TransactionType != tasks.TypeTitle {
		t.Errorf("unexpected title doc %+v", p)
	}
	if p := keys["tags"]; p.Type != "list<string>" || len(p.Examples) == 0 {
		t.Errorf("unexpected tags doc %+v", p)
	}
	if !strings.Contains(strings.Join(doc.Types, ","), extensions.TypeSubscribers) {
		t.Errorf("types %v", doc.Types)
	}
}

func TestSubmitComment(t *testing.T) {
	ctx := context.Background()

	t.Run("text and actions", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Discuss")
		out, err := h.engine.SubmitComment(ctx, alice, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			CommentText:      "Closing",
			Actions: []edit.CommentAction{
				{Type: tasks.TypeStatus, Value: tasks.StatusResolved, InitialValue: tasks.StatusOpen},
				{Type: tasks.TypeTitle, Value: "Not an action"},
			},
		})
		saved := mustOutcome[*edit.Saved](t, out, err)
		if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{tasks.TypeStatus, edit.TypeComment}) {
			t.Fatalf("unexpected transactions %v", got)
		}
		if saved.Transactions[0].IsDefault {
			t.Error("changed action flagged as default")
		}
		if string(saved.Transactions[1].NewValue) != `"Closing"` {
			t.Errorf("comment value %s", saved.Transactions[1].NewValue)
		}
		stored := h.loadTask(t, task.PHID)
		if stored.Status != tasks.StatusResolved || stored.Title != "Discuss" {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("view is enough for text", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Public")
		h.checker.Deny(edit.CapabilityEdit)

		out, err := h.engine.SubmitComment(ctx, bob, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			CommentText:      "Me too",
		})
		mustOutcome[*edit.Saved](t, out, err)

		out, err = h.engine.SubmitComment(ctx, bob, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			CommentText:      "And close it",
			Actions:          []edit.CommentAction{{Type: tasks.TypeStatus, Value: tasks.StatusResolved}},
		})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Reason != edit.ErrorClassPermission || rejected.Code != edit.ErrCodeEditDenied {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})

	t.Run("empty comment", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Quiet")
		out, err := h.engine.SubmitComment(ctx, alice, tasks.EngineKey, &edit.Request{ObjectIdentifier: task.PHID})
		noEffect := mustOutcome[*edit.NoEffect](t, out, err)
		if noEffect.Err.Details["has_comment"] != true {
			t.Errorf("details %v", noEffect.Err.Details)
		}
	})

	t.Run("invalid action value", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Strict")
		out, err := h.engine.SubmitComment(ctx, alice, tasks.EngineKey, &edit.Request{
			ObjectIdentifier: task.PHID,
			Actions:          []edit.CommentAction{{Type: tasks.TypeStatus, Value: "someday"}},
		})
		invalid := mustOutcome[*edit.Invalid](t, out, err)
		if _, ok := invalid.MessageFor(tasks.TypeStatus); !ok {
			t.Errorf("expected status error, got %+v", invalid.Errors)
		}
	})

	t.Run("requires object", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.engine.SubmitComment(ctx, alice, tasks.EngineKey, &edit.Request{CommentText: "Hello?"})
		rejected := mustOutcome[*edit.Rejected](t, out, err)
		if rejected.Code != edit.ErrCodeObjectNotFound {
			t.Errorf("unexpected rejection %+v", rejected)
		}
	})
}

func TestResolveTemplate(t *testing.T) {
	h := newHarness(t)
	source := h.createTask(t, "Original",
		edit.RPCTransaction{Type: tasks.TypePriority, Value: tasks.PriorityHigh},
		edit.RPCTransaction{Type: tasks.TypeProjects, Value: []any{"web"}},
		edit.RPCTransaction{Type: tasks.TypeOwner, Value: "PHID-USER-bob"},
		edit.RPCTransaction{Type: tasks.TypeStatus, Value: tasks.StatusResolved},
	)

	res, err := h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey: tasks.EngineKey,
		Kind:      edit.RequestKindCreate,
		Template:  fmt.Sprintf("T%d", source.ID),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	values := edit.FormValues(res.Fields)
	if values.Get("title") != "Original" || values.Get("priority") != tasks.PriorityHigh {
		t.Errorf("copyable fields not copied: %v", values)
	}
	if !reflect.DeepEqual(values["projects"], []string{"web"}) {
		t.Errorf("projects %v", values["projects"])
	}
	if values.Get("owner") != "" || values.Get("status") != tasks.StatusOpen {
		t.Errorf("non-copyable fields copied: %v", values)
	}
	title, _ := res.Fields.Get("title")
	if title.Source() != edit.SourceTemplate || title.DefaultValue() != "Original" {
		t.Errorf("title source %s default %v", title.Source(), title.DefaultValue())
	}
	if res.Object.ObjectHeader().IsPersisted() {
		t.Error("template resolution must not persist")
	}
}

func TestDuplicateFieldKeyIsConfigurationError(t *testing.T) {
	h := newHarness(t, withExtension(duplicateContributor{}))

	_, err := h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey: tasks.EngineKey,
		Kind:      edit.RequestKindCreate,
	})
	if ee, ok := edit.AsError(err); !ok || ee.Class != edit.ErrorClassConfiguration || ee.Code != edit.ErrCodeDuplicateKey {
		t.Fatalf("expected duplicate key configuration error, got %v", err)
	}

	out, err := h.engine.SubmitRPC(context.Background(), alice, tasks.EngineKey, edit.RPCRequest{
		Transactions: []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "x"}},
	})
	if out != nil || !edit.IsConfiguration(err) {
		t.Errorf("configuration errors must not become outcomes, got %v, %v", out, err)
	}
}

func TestListTransactions(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, "Logged")

	log, err := h.engine.ListTransactions(context.Background(), alice, tasks.EngineKey, task.PHID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if got := transactionTypes(log); !reflect.DeepEqual(got, []string{edit.TypeCreate, tasks.TypeTitle}) {
		t.Errorf("unexpected log %v", got)
	}

	h.checker.Deny(edit.CapabilityView)
	if _, err := h.engine.ListTransactions(context.Background(), bob, tasks.EngineKey, task.PHID); !edit.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestObserverSeesEveryOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Observed")

	_, _ = h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
		ObjectIdentifier: task.PHID,
		Transactions:     []edit.RPCTransaction{{Type: "nope"}},
	})
	_, _ = h.engine.SubmitComment(ctx, alice, tasks.EngineKey, &edit.Request{ObjectIdentifier: task.PHID})
	_, _ = h.engine.ParameterDocs(ctx, alice, tasks.EngineKey)

	want := []string{"saved", "invalid", "no_effect", "documentation"}
	if !reflect.DeepEqual(h.observer.outcomes, want) {
		t.Errorf("got %v, want %v", h.observer.outcomes, want)
	}
	if len(h.observer.applied) != 1 || !reflect.DeepEqual(h.observer.applied[0], []string{edit.TypeCreate, tasks.TypeTitle}) {
		t.Errorf("applied %v", h.observer.applied)
	}
}
