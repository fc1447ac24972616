package edit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/extensions"
	"github.com/openfroyo/editengine/pkg/rules"
	"github.com/openfroyo/editengine/pkg/stores"
	"github.com/openfroyo/editengine/pkg/tasks"
)

var (
	alice = edit.Viewer{PHID: "PHID-USER-alice"}
	bob   = edit.Viewer{PHID: "PHID-USER-bob"}
)

// stubChecker grants everything except the listed capabilities.
type stubChecker struct {
	mu       sync.Mutex
	deny     map[edit.Capability]bool
	subjects []edit.PolicySubject
}

func newStubChecker() *stubChecker {
	return &stubChecker{deny: map[edit.Capability]bool{}}
}

func (c *stubChecker) Deny(caps ...edit.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, capability := range caps {
		c.deny[capability] = true
	}
}

func (c *stubChecker) Allows(_ context.Context, _ edit.Viewer, subject edit.PolicySubject, caps ...edit.Capability) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	for _, capability := range caps {
		if c.deny[capability] {
			return false, nil
		}
	}
	return true, nil
}

// stubScripts returns a fixed value for every script.
type stubScripts struct {
	value  any
	inputs []map[string]any
}

func (s *stubScripts) EvaluateDefault(_ context.Context, _ string, input map[string]any) (any, error) {
	s.inputs = append(s.inputs, input)
	return s.value, nil
}

// recordingObserver remembers outcomes and applied batches.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	applied  [][]string
	created  []bool
}

func (o *recordingObserver) StartEdit(ctx context.Context, _ string, _ edit.RequestKind) (context.Context, func(string, error)) {
	return ctx, func(outcome string, _ error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.outcomes = append(o.outcomes, outcome)
	}
}

func (o *recordingObserver) TransactionsApplied(_ context.Context, _, _ string, created bool, types []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applied = append(o.applied, types)
	o.created = append(o.created, created)
}

// failingStore fails every storage transaction after fn has run.
type failingStore struct {
	*stores.MemoryStore
}

var errDiskFull = errors.New("disk full")

func (s failingStore) InTx(ctx context.Context, fn func(tx edit.StoreTx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx edit.StoreTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errDiskFull
	})
}

// note is a second object type used to exercise type checks.
type note struct {
	edit.Header
	Body string `json:"body"`
}

type noteDefinition struct {
	builtins []*edit.Configuration
}

func (d *noteDefinition) EngineKey() string  { return "notes.note" }
func (d *noteDefinition) PHIDType() string   { return "NOTE" }
func (d *noteDefinition) Monogram() string   { return "N" }
func (d *noteDefinition) ObjectName() string { return "note" }

func (d *noteDefinition) NewObject(edit.Viewer) edit.Object { return &note{} }

func (d *noteDefinition) BuildFields(edit.Object) []*edit.Field {
	return []*edit.Field{
		edit.NewTextField("body", "Body").
			WithTransaction("note:body").
			Bind(
				func(o edit.Object) any { return o.(*note).Body },
				func(o edit.Object, v any) { o.(*note).Body = v.(string) },
			),
	}
}

func (d *noteDefinition) BuiltinConfigurations() []*edit.Configuration {
	if d.builtins != nil {
		return d.builtins
	}
	return []*edit.Configuration{{Name: "Note"}}
}

func (d *noteDefinition) ObjectURI(edit.Object) string { return "" }

// duplicateContributor contributes a field clashing with a task field.
type duplicateContributor struct{}

func (duplicateContributor) ExtensionKey() string                             { return "duplicate" }
func (duplicateContributor) SupportsObject(edit.Definition, edit.Object) bool { return true }
func (duplicateContributor) BuildFields(edit.Definition, edit.Object) []*edit.Field {
	return []*edit.Field{edit.NewTextField("title", "Other Title").WithTransaction("other:title")}
}

type harness struct {
	reg      *edit.Registry
	store    *stores.MemoryStore
	checker  *stubChecker
	observer *recordingObserver
	engine   *edit.Engine
}

type harnessOption func(*edit.Registry, *edit.Options)

// withFailingStore makes every storage transaction fail after writing.
func withFailingStore() harnessOption {
	return func(_ *edit.Registry, o *edit.Options) {
		o.Store = failingStore{o.Store.(*stores.MemoryStore)}
	}
}

func withScripts(s edit.ScriptEvaluator) harnessOption {
	return func(_ *edit.Registry, o *edit.Options) { o.Scripts = s }
}

func withExtension(ext edit.FieldContributor) harnessOption {
	return func(r *edit.Registry, _ *edit.Options) { _ = r.RegisterExtension(ext) }
}

func withSettings(engineKey string, settings edit.EngineSettings) harnessOption {
	return func(r *edit.Registry, _ *edit.Options) {
		if err := r.Configure(engineKey, settings); err != nil {
			panic(err)
		}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	reg := edit.NewRegistry()
	reg.MustRegister(tasks.NewDefinition("/tasks"))
	reg.MustRegister(&noteDefinition{})
	if err := reg.RegisterExtension(extensions.NewSubscriptions()); err != nil {
		t.Fatalf("RegisterExtension failed: %v", err)
	}

	evaluator, err := rules.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	h := &harness{
		reg:      reg,
		store:    stores.NewMemoryStore(),
		checker:  newStubChecker(),
		observer: &recordingObserver{},
	}
	options := edit.Options{
		Store:    h.store,
		Checker:  h.checker,
		Rules:    evaluator,
		Observer: h.observer,
		Logger:   zerolog.New(nil).Level(zerolog.Disabled),
	}
	for _, opt := range opts {
		opt(reg, &options)
	}
	reg.Freeze()

	h.engine = edit.NewEngine(reg, options)
	return h
}

// createTask saves a task through RPC and returns it.
func (h *harness) createTask(t *testing.T, title string, txns ...edit.RPCTransaction) *tasks.Task {
	t.Helper()
	all := append([]edit.RPCTransaction{{Type: tasks.TypeTitle, Value: title}}, txns...)
	out, err := h.engine.SubmitRPC(context.Background(), alice, tasks.EngineKey, edit.RPCRequest{Transactions: all})
	if err != nil {
		t.Fatalf("SubmitRPC failed: %v", err)
	}
	saved, ok := out.(*edit.Saved)
	if !ok {
		t.Fatalf("expected Saved, got %T: %+v", out, out)
	}
	return saved.Object.(*tasks.Task)
}

// loadTask reads a task back from the store.
func (h *harness) loadTask(t *testing.T, phid string) *tasks.Task {
	t.Helper()
	rec, err := h.store.GetObjectByPHID(context.Background(), phid)
	if err != nil {
		t.Fatalf("GetObjectByPHID failed: %v", err)
	}
	obj, err := edit.DecodeObject(tasks.NewDefinition(""), rec)
	if err != nil {
		t.Fatalf("DecodeObject failed: %v", err)
	}
	return obj.(*tasks.Task)
}

func mustOutcome[T edit.Outcome](t *testing.T, out edit.Outcome, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o, ok := out.(T)
	if !ok {
		var zero T
		t.Fatalf("expected %T, got %T: %+v", zero, out, out)
	}
	return o
}
