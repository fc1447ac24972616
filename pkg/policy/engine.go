package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/editengine/pkg/edit"
)

const decisionQuery = "allow := data." + Package + ".allow; deny := data." + Package + ".deny"

// Engine decides capabilities by evaluating Rego policies. It implements
// edit.CapabilityChecker.
type Engine struct {
	mu         sync.RWMutex
	policies   map[string]*Policy
	query      rego.PreparedEvalQuery
	compiled   time.Time
	logger     zerolog.Logger
	onDecision func(capability string, allowed bool)
}

var _ edit.CapabilityChecker = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithDecisionHook registers fn to be called after every capability decision.
func WithDecisionHook(fn func(capability string, allowed bool)) Option {
	return func(e *Engine) { e.onDecision = fn }
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*Policy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.SetPolicies(context.Background(), nil); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Allows implements edit.CapabilityChecker. Every capability must be granted.
func (e *Engine) Allows(ctx context.Context, viewer edit.Viewer, subject edit.PolicySubject, caps ...edit.Capability) (bool, error) {
	for _, c := range caps {
		d, err := e.Decide(ctx, viewer, subject, c)
		if err != nil {
			return false, err
		}
		if !d.Allowed {
			return false, nil
		}
	}
	return true, nil
}

// Decide evaluates a single capability and reports the deny reasons, if any.
func (e *Engine) Decide(ctx context.Context, viewer edit.Viewer, subject edit.PolicySubject, capability edit.Capability) (*Decision, error) {
	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(NewInput(viewer, subject, capability)))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	d := &Decision{Capability: capability}
	if len(results) > 0 {
		allow, _ := results[0].Bindings["allow"].(bool)
		if deny, ok := results[0].Bindings["deny"].([]interface{}); ok {
			for _, r := range deny {
				d.Reasons = append(d.Reasons, fmt.Sprint(r))
			}
			sort.Strings(d.Reasons)
		}
		d.Allowed = allow && (len(d.Reasons) == 0 || viewer.Omnipotent)
	}

	if e.onDecision != nil {
		e.onDecision(string(capability), d.Allowed)
	}

	e.logger.Debug().
		Str("viewer", viewer.PHID).
		Str("engine", subject.EngineKey).
		Str("object", subject.PHID).
		Str("capability", string(capability)).
		Bool("allowed", d.Allowed).
		Strs("reasons", d.Reasons).
		Msg("Capability decided")

	return d, nil
}

// LoadPolicies loads policy files and adds them to the built-in set.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.SetPolicies(ctx, policies)
}

// SetPolicies replaces the custom policies with policies and recompiles.
// On error the previous policy set stays active.
func (e *Engine) SetPolicies(ctx context.Context, policies []Policy) error {
	next := make(map[string]*Policy)
	for _, p := range GetBuiltinPolicies() {
		next[p.Name] = &p
	}
	for i := range policies {
		p := policies[i]
		if existing, ok := next[p.Name]; ok && existing.Builtin {
			return fmt.Errorf("policy %s conflicts with a built-in policy", p.Name)
		}
		next[p.Name] = &p
	}

	query, err := compile(ctx, next)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies = next
	e.query = query
	e.compiled = time.Now()
	e.mu.Unlock()

	e.logger.Info().
		Int("count", len(next)).
		Msg("Policies compiled")

	return nil
}

// compile parses every enabled policy and prepares the decision query.
func compile(ctx context.Context, policies map[string]*Policy) (rego.PreparedEvalQuery, error) {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for _, name := range names {
		p := policies[name]
		if !p.Enabled {
			continue
		}
		module, err := ast.ParseModule(p.Name, p.Rego)
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
		}
		if got := module.Package.Path.String(); got != "data."+Package {
			return rego.PreparedEvalQuery{}, fmt.Errorf("policy %s must declare package %s, got %s", p.Name, Package, got)
		}
		opts = append(opts, rego.ParsedModule(module))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare query: %w", err)
	}
	return query, nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		policies = append(policies, *p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, true)
}

// DisablePolicy disables a policy by name. Built-in policies cannot be
// disabled.
func (e *Engine) DisablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, false)
}

func (e *Engine) setEnabled(ctx context.Context, name string, enabled bool) error {
	e.mu.RLock()
	p, exists := e.policies[name]
	var custom []Policy
	for _, q := range e.policies {
		if !q.Builtin {
			custom = append(custom, *q)
		}
	}
	e.mu.RUnlock()

	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	if p.Builtin && !enabled {
		return fmt.Errorf("built-in policy %s cannot be disabled", name)
	}
	for i := range custom {
		if custom[i].Name == name {
			custom[i].Enabled = enabled
		}
	}
	if err := e.SetPolicies(ctx, custom); err != nil {
		return err
	}

	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}

// CompiledAt returns when the active policy set was compiled.
func (e *Engine) CompiledAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.compiled
}
