package edit_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/stores"
	"github.com/openfroyo/editengine/pkg/tasks"
)

func TestRegisterChecksBuiltins(t *testing.T) {
	tests := []struct {
		name     string
		builtins []*edit.Configuration
		wantCode string
		wantErr  bool
		wantKeys []string
	}{
		{
			name:     "promotes lone unnamed builtin",
			builtins: []*edit.Configuration{{}},
			wantKeys: []string{edit.DefaultConfigurationKey},
		},
		{
			name:     "promotes first of several",
			builtins: []*edit.Configuration{{Name: "Note"}, {BuiltinKey: "triage", Name: "Triage"}},
			wantKeys: []string{edit.DefaultConfigurationKey, "triage"},
		},
		{
			name:     "explicit default",
			builtins: []*edit.Configuration{{BuiltinKey: "triage"}, {BuiltinKey: edit.DefaultConfigurationKey}},
			wantKeys: []string{"triage", edit.DefaultConfigurationKey},
		},
		{
			name:     "first already keyed",
			builtins: []*edit.Configuration{{BuiltinKey: "triage"}, {Name: "Other"}},
			wantErr:  true,
			wantCode: edit.ErrCodeAmbiguousDefault,
		},
		{
			name:     "no builtins",
			builtins: []*edit.Configuration{},
			wantErr:  true,
			wantCode: edit.ErrCodeMissingDefault,
		},
		{
			name: "duplicate keys",
			builtins: []*edit.Configuration{
				{BuiltinKey: edit.DefaultConfigurationKey},
				{BuiltinKey: "triage"},
				{BuiltinKey: "triage"},
			},
			wantErr:  true,
			wantCode: edit.ErrCodeDuplicateKey,
		},
		{
			name:     "unkeyed builtin after default",
			builtins: []*edit.Configuration{{BuiltinKey: edit.DefaultConfigurationKey}, {Name: "Loose"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := edit.NewRegistry()
			err := reg.Register(&noteDefinition{builtins: tt.builtins})
			if tt.wantErr {
				if !edit.IsConfiguration(err) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				if ee, _ := edit.AsError(err); tt.wantCode != "" && ee.Code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, ee.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register failed: %v", err)
			}

			builtins := reg.Builtins("notes.note")
			if len(builtins) != len(tt.wantKeys) {
				t.Fatalf("expected %d builtins, got %d", len(tt.wantKeys), len(builtins))
			}
			for i, key := range tt.wantKeys {
				if builtins[i].BuiltinKey != key {
					t.Errorf("builtin %d: expected key %q, got %q", i, key, builtins[i].BuiltinKey)
				}
			}
			if tt.builtins[0].BuiltinKey == "" {
				first := builtins[0]
				if !first.IsDefault || !first.IsEdit || first.Name == "" {
					t.Errorf("promoted builtin not flagged: %+v", first)
				}
			}
		})
	}
}

func TestRegistryRejectsDuplicatesAndFreezes(t *testing.T) {
	reg := edit.NewRegistry()
	reg.MustRegister(tasks.NewDefinition(""))

	err := reg.Register(tasks.NewDefinition(""))
	if ee, ok := edit.AsError(err); !ok || ee.Code != edit.ErrCodeDuplicateKey {
		t.Errorf("expected duplicate key error, got %v", err)
	}

	reg.Freeze()
	if err := reg.Register(&noteDefinition{}); !edit.IsConfiguration(err) {
		t.Errorf("expected frozen registry to refuse registration, got %v", err)
	}
	if _, ok := reg.Lookup(tasks.EngineKey); !ok {
		t.Error("lookup failed after freeze")
	}
	if def, ok := reg.ByPHIDType(tasks.PHIDType); !ok || def.EngineKey() != tasks.EngineKey {
		t.Error("ByPHIDType failed")
	}
}

func saveConfiguration(t *testing.T, h *harness, cfg *edit.Configuration) *edit.Configuration {
	t.Helper()
	cfg.EngineKey = tasks.EngineKey
	if err := h.engine.SaveConfiguration(context.Background(), alice, cfg); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}
	return cfg
}

func disableBuiltins(t *testing.T, h *harness) {
	t.Helper()
	saveConfiguration(t, h, &edit.Configuration{BuiltinKey: edit.DefaultConfigurationKey, Name: "Create Task", IsDisabled: true})
	saveConfiguration(t, h, &edit.Configuration{BuiltinKey: "bug", Name: "Report Bug", IsDisabled: true})
}

func TestDefaultCreateConfigurationOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	disableBuiltins(t, h)

	saveConfiguration(t, h, &edit.Configuration{Name: "Triage", IsDefault: true, CreateOrder: 5})
	quick := saveConfiguration(t, h, &edit.Configuration{Name: "Quick", IsDefault: true, CreateOrder: 3})
	saveConfiguration(t, h, &edit.Configuration{Name: "Quick Again", IsDefault: true, CreateOrder: 3})
	saveConfiguration(t, h, &edit.Configuration{Name: "Disabled First", IsDefault: true, CreateOrder: 0, IsDisabled: true})
	saveConfiguration(t, h, &edit.Configuration{Name: "Not Default", CreateOrder: 0})

	for i := 0; i < 3; i++ {
		res, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindCreate})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if got := res.Configuration.Identifier(); got != quick.Identifier() {
			t.Fatalf("expected configuration %s, got %s (%s)", quick.Identifier(), got, res.Configuration.Name)
		}
	}
}

func TestRPCFollowsDefaultCreateConfiguration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saveConfiguration(t, h, &edit.Configuration{BuiltinKey: edit.DefaultConfigurationKey, Name: "Create Task", IsDisabled: true})

	res, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindRPC})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := res.Configuration.Identifier(); got != "bug" {
		t.Errorf("expected the next create form, got %s", got)
	}

	out, err := h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
		Transactions: []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "Batch"}},
	})
	saved := mustOutcome[*edit.Saved](t, out, err)
	if got := transactionTypes(saved.Transactions); !reflect.DeepEqual(got, []string{edit.TypeCreate, tasks.TypeTitle}) {
		t.Errorf("unexpected transactions %v", got)
	}

	saveConfiguration(t, h, &edit.Configuration{BuiltinKey: "bug", Name: "Report Bug", IsDisabled: true})
	out, err = h.engine.SubmitRPC(ctx, alice, tasks.EngineKey, edit.RPCRequest{
		Transactions: []edit.RPCTransaction{{Type: tasks.TypeTitle, Value: "Nowhere"}},
	})
	rejected := mustOutcome[*edit.Rejected](t, out, err)
	if rejected.Reason != edit.ErrorClassNoUsableConfiguration {
		t.Errorf("expected no usable configuration, got %s", rejected.Reason)
	}
}

func TestEditConfigurationOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Ordering")

	saveConfiguration(t, h, &edit.Configuration{BuiltinKey: edit.DefaultConfigurationKey, Name: "Create Task", IsDefault: true, IsEdit: true, EditOrder: 10})
	triage := saveConfiguration(t, h, &edit.Configuration{Name: "Triage", IsEdit: true, EditOrder: 2})

	res, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindEdit, Identifier: task.PHID})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.IsCreate || res.Configuration.Identifier() != triage.Identifier() {
		t.Errorf("expected triage edit form, got %s", res.Configuration.Identifier())
	}
}

func TestResolveConfigurationFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit selector not found", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindCreate, ConfigKey: "nope"})
		if ee, ok := edit.AsError(err); !ok || ee.Class != edit.ErrorClassNotFound || ee.Code != edit.ErrCodeConfigurationNotFound {
			t.Errorf("expected configuration not found, got %v", err)
		}
	})

	t.Run("disabled explicit", func(t *testing.T) {
		h := newHarness(t)
		saveConfiguration(t, h, &edit.Configuration{BuiltinKey: "bug", Name: "Report Bug", IsDefault: true, IsDisabled: true})
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindCreate, ConfigKey: "bug"})
		if !edit.IsFormDisabled(err) {
			t.Errorf("expected form disabled, got %v", err)
		}
	})

	t.Run("disabled in edit mode", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Disabled")
		saveConfiguration(t, h, &edit.Configuration{Name: "Retired", IsEdit: true, IsDisabled: true})
		list, _ := h.engine.Configurations(ctx, tasks.EngineKey)
		retired := list[len(list)-1].Identifier()
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindEdit, Identifier: task.PHID, ConfigKey: retired})
		if !edit.IsFormDisabled(err) {
			t.Errorf("expected form disabled, got %v", err)
		}
	})

	t.Run("wrong form kind", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "Wrong kind")
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindEdit, Identifier: task.PHID, ConfigKey: "bug"})
		if !edit.IsWrongFormKind(err) {
			t.Errorf("expected wrong form kind, got %v", err)
		}
	})

	t.Run("no usable create configuration", func(t *testing.T) {
		h := newHarness(t)
		disableBuiltins(t, h)
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindCreate})
		if ee, ok := edit.AsError(err); !ok || ee.Class != edit.ErrorClassNoUsableConfiguration || ee.Code != edit.ErrCodeNoDefaultCreate {
			t.Errorf("expected no usable configuration, got %v", err)
		}
	})

	t.Run("no usable edit configuration", func(t *testing.T) {
		h := newHarness(t)
		task := h.createTask(t, "No edit")
		saveConfiguration(t, h, &edit.Configuration{BuiltinKey: edit.DefaultConfigurationKey, Name: "Create Task", IsDefault: true})
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: tasks.EngineKey, Kind: edit.RequestKindEdit, Identifier: task.PHID})
		if !edit.IsNoUsableConfiguration(err) {
			t.Errorf("expected no usable configuration, got %v", err)
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Resolve(ctx, alice, edit.ResolveRequest{EngineKey: "wiki.page", Kind: edit.RequestKindCreate})
		if !edit.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestConfigurationCustomizesFields(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey: tasks.EngineKey,
		Kind:      edit.RequestKindCreate,
		ConfigKey: "bug",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	fields := res.Fields.Fields()
	order := []string{"title", "priority", "description"}
	for i, key := range order {
		if fields[i].Key() != key {
			t.Errorf("position %d: expected %s, got %s", i, key, fields[i].Key())
		}
	}
	if last := fields[len(fields)-1]; last.Key() != edit.CommentFieldKey {
		t.Errorf("expected comment field last, got %s", last.Key())
	}

	priority, _ := res.Fields.Get("priority")
	if priority.Value() != tasks.PriorityHigh || priority.DefaultValue() != tasks.PriorityHigh {
		t.Errorf("expected configured default high, got %v", priority.Value())
	}
	points, _ := res.Fields.Get("points")
	if !points.IsHidden() || points.AcceptsForm() {
		t.Error("expected points to be hidden from the form")
	}
	if !points.AcceptsParameters() {
		t.Error("hidden fields still accept parameters")
	}
}

func TestConfigurationDefaultsOnlyApplyOnCreate(t *testing.T) {
	h := newHarness(t, withSettings(tasks.EngineKey, edit.EngineSettings{
		Configurations: []*edit.Configuration{{
			BuiltinKey: "triage",
			Name:       "Triage",
			IsEdit:     true,
			EditOrder:  -1,
			Fields: map[string]edit.FieldCustomization{
				"priority": {Default: tasks.PriorityUnbreak},
				"status":   {Locked: boolPtr(true)},
			},
		}},
	}))
	task := h.createTask(t, "Triage me")

	res, err := h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey:  tasks.EngineKey,
		Kind:       edit.RequestKindEdit,
		Identifier: task.PHID,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Configuration.Identifier() != "triage" {
		t.Fatalf("expected triage form, got %s", res.Configuration.Identifier())
	}
	priority, _ := res.Fields.Get("priority")
	if priority.Value() != tasks.PriorityNormal {
		t.Errorf("edit mode must keep the stored value, got %v", priority.Value())
	}
	status, _ := res.Fields.Get("status")
	if !status.IsLocked() || status.AcceptsForm() || status.AcceptsParameters() || !status.AcceptsRPC() {
		t.Error("locked field must refuse form and parameters but not RPC")
	}
}

func TestDefaultScript(t *testing.T) {
	scripts := &stubScripts{value: "low"}
	h := newHarness(t,
		withScripts(scripts),
		withSettings(tasks.EngineKey, edit.EngineSettings{
			Configurations: []*edit.Configuration{{
				BuiltinKey: "scripted",
				Name:       "Scripted",
				Fields: map[string]edit.FieldCustomization{
					"priority": {Default: tasks.PriorityHigh, DefaultScript: `value = "low"`},
				},
			}},
		}),
	)

	res, err := h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey: tasks.EngineKey,
		Kind:      edit.RequestKindCreate,
		ConfigKey: "scripted",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	priority, _ := res.Fields.Get("priority")
	if priority.Value() != tasks.PriorityLow {
		t.Errorf("expected script default low, got %v", priority.Value())
	}
	if len(scripts.inputs) != 1 {
		t.Fatalf("expected 1 script run, got %d", len(scripts.inputs))
	}
	in := scripts.inputs[0]
	if in["viewer"] != alice.PHID || in["field"] != "priority" || in["value"] != tasks.PriorityHigh {
		t.Errorf("unexpected script input: %v", in)
	}

	scripts.value = 42
	_, err = h.engine.Resolve(context.Background(), alice, edit.ResolveRequest{
		EngineKey: tasks.EngineKey,
		Kind:      edit.RequestKindCreate,
		ConfigKey: "scripted",
	})
	if !edit.IsConfiguration(err) {
		t.Errorf("expected configuration error for a bad script result, got %v", err)
	}
}

func TestSaveConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("records audit entry", func(t *testing.T) {
		h := newHarness(t)
		saveConfiguration(t, h, &edit.Configuration{Name: "Triage", IsEdit: true})
		action := stores.AuditConfigurationCreated
		entries, err := h.store.ListAuditEntries(ctx, &action, nil, 10, 0)
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Actor != alice.PHID {
			t.Errorf("unexpected audit entries: %+v", entries)
		}
	})

	t.Run("manage denied", func(t *testing.T) {
		h := newHarness(t)
		h.checker.Deny(edit.CapabilityManage)
		err := h.engine.SaveConfiguration(ctx, bob, &edit.Configuration{EngineKey: tasks.EngineKey, Name: "Nope"})
		if ee, ok := edit.AsError(err); !ok || ee.Class != edit.ErrorClassPermission || ee.Code != edit.ErrCodeManageDenied {
			t.Errorf("expected manage denied, got %v", err)
		}
	})

	t.Run("unknown builtin", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.SaveConfiguration(ctx, alice, &edit.Configuration{EngineKey: tasks.EngineKey, BuiltinKey: "nope"})
		if !edit.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestConfigurationIdentifierAndClone(t *testing.T) {
	builtin := &edit.Configuration{BuiltinKey: "bug"}
	stored := &edit.Configuration{ID: 7}
	if builtin.Identifier() != "bug" || !builtin.IsBuiltin() {
		t.Error("unexpected builtin identity")
	}
	if stored.Identifier() != "7" || stored.IsBuiltin() {
		t.Error("unexpected stored identity")
	}

	orig := &edit.Configuration{
		FieldOrder: []string{"title"},
		Fields:     map[string]edit.FieldCustomization{"title": {Rules: []string{"size(value) > 1"}}},
	}
	c := orig.Clone()
	c.FieldOrder[0] = "changed"
	c.Fields["title"].Rules[0] = "changed"
	if orig.FieldOrder[0] != "title" || orig.Fields["title"].Rules[0] != "size(value) > 1" {
		t.Error("Clone shares state with the original")
	}
}

func boolPtr(b bool) *bool {
	return &b
}
