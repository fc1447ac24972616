package edit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Options configures an Engine.
type Options struct {
	// Store persists objects, logs and configurations. Required.
	Store Store

	// Checker decides capabilities. Defaults to AllowAll.
	Checker CapabilityChecker

	// Names resolves short names. Defaults to a MonogramIndex.
	Names NameIndex

	// Scripts evaluates configured default scripts. Optional.
	Scripts ScriptEvaluator

	// Rules evaluates field validation rules. Optional.
	Rules RuleEvaluator

	// Observer receives instrumentation callbacks. Optional.
	Observer Observer

	Logger zerolog.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// Engine is the workflow orchestrator: it resolves objects and
// configurations, builds field sets, turns submitted input into mutation
// records and drives the Editor.
type Engine struct {
	registry *Registry
	store    Store
	checker  CapabilityChecker
	names    NameIndex
	scripts  ScriptEvaluator
	observer Observer
	editor   *Editor
	logger   zerolog.Logger
}

// NewEngine creates an engine over the definitions in reg.
func NewEngine(reg *Registry, opts Options) *Engine {
	if opts.Checker == nil {
		opts.Checker = AllowAll{}
	}
	if opts.Names == nil {
		opts.Names = MonogramIndex{Registry: reg, Store: opts.Store}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	editor := NewEditor(opts.Store, opts.Rules, opts.Observer, opts.Logger)
	if opts.Now != nil {
		editor.now = opts.Now
	}
	return &Engine{
		registry: reg,
		store:    opts.Store,
		checker:  opts.Checker,
		names:    opts.Names,
		scripts:  opts.Scripts,
		observer: opts.Observer,
		editor:   editor,
		logger:   opts.Logger.With().Str("component", "edit-engine").Logger(),
	}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Editor returns the transaction editor.
func (e *Engine) Editor() *Editor {
	return e.editor
}

// ResolveRequest selects what Resolve should build.
type ResolveRequest struct {
	EngineKey string
	Kind      RequestKind

	// Identifier names an existing object. Empty selects create mode.
	Identifier string

	// ConfigKey explicitly selects a configuration.
	ConfigKey string

	// Capabilities narrows or widens the capabilities required on an
	// existing object. Defaults to view and edit, or view for comments.
	Capabilities []Capability

	// Template names an object to copy copyable fields from in create mode.
	Template string
}

// Resolution is the object, configuration and field set built for one
// request.
type Resolution struct {
	Definition    Definition
	Object        Object
	Configuration *Configuration
	Fields        *FieldSet
	IsCreate      bool
}

// URI returns where the resolved object can be viewed.
func (r *Resolution) URI() string {
	return r.Definition.ObjectURI(r.Object)
}

func (e *Engine) definition(engineKey string) (Definition, error) {
	def, ok := e.registry.Lookup(engineKey)
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("no edit engine %q", engineKey), nil).
			WithEngine(engineKey).WithCode(ErrCodeEngineNotFound)
	}
	return def, nil
}

// Resolver returns the identifier resolver of an engine.
func (e *Engine) Resolver(engineKey string) (*Resolver, error) {
	def, err := e.definition(engineKey)
	if err != nil {
		return nil, err
	}
	return NewResolver(def, e.store, e.names, e.checker, e.logger), nil
}

// Resolve builds the object, configuration and field set for a request
// without applying anything.
func (e *Engine) Resolve(ctx context.Context, viewer Viewer, req ResolveRequest) (*Resolution, error) {
	def, err := e.definition(req.EngineKey)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(def, e.store, e.names, e.checker, e.logger)

	res := &Resolution{Definition: def}
	if req.Identifier != "" {
		caps := req.Capabilities
		if len(caps) == 0 {
			caps = DefaultCapabilities
			if req.Kind == RequestKindComment {
				caps = []Capability{CapabilityView}
			}
		}
		obj, err := resolver.Resolve(ctx, viewer, req.Identifier, caps...)
		if err != nil {
			return nil, err
		}
		res.Object = obj
	} else {
		if req.Kind != RequestKindParameters {
			if err := e.checkCreate(ctx, viewer, def); err != nil {
				return nil, err
			}
		}
		res.Object = e.newObject(def, viewer)
		res.IsCreate = true
	}

	cfg, err := e.resolveConfiguration(ctx, def, req, res.IsCreate)
	if err != nil {
		return nil, err
	}
	res.Configuration = cfg

	fields, err := e.buildFields(def, res.Object, cfg, res.IsCreate)
	if err != nil {
		return nil, err
	}
	res.Fields = fields

	if err := e.applyConfiguration(ctx, viewer, res); err != nil {
		return nil, err
	}

	if req.Template != "" && res.IsCreate {
		tmpl, err := resolver.Resolve(ctx, viewer, req.Template, CapabilityView)
		if err != nil {
			return nil, err
		}
		for _, f := range res.Fields.Fields() {
			if !f.copyable {
				continue
			}
			v, err := f.kind.FromJSON(f.currentObjectValue(tmpl))
			if err != nil {
				continue
			}
			f.SetValue(v, SourceTemplate)
		}
	}

	for _, f := range res.Fields.Fields() {
		f.snapshotDefault()
	}
	return res, nil
}

func (e *Engine) newObject(def Definition, viewer Viewer) Object {
	obj := def.NewObject(viewer)
	h := obj.ObjectHeader()
	if h.PHID == "" {
		h.PHID = NewPHID(def.PHIDType())
	}
	if h.AuthorPHID == "" {
		h.AuthorPHID = viewer.PHID
	}
	return obj
}

func (e *Engine) engineSubject(def Definition, capability Capability, policy string) PolicySubject {
	subject := PolicySubject{EngineKey: def.EngineKey(), ObjectType: def.PHIDType()}
	if policy != "" {
		subject.Policies = map[Capability]string{capability: policy}
	}
	return subject
}

func (e *Engine) checkCreate(ctx context.Context, viewer Viewer, def Definition) error {
	settings := e.registry.Settings(def.EngineKey())
	allowed, err := e.checker.Allows(ctx, viewer,
		e.engineSubject(def, CapabilityCreate, settings.CreatePolicy), CapabilityCreate)
	if err != nil {
		return fmt.Errorf("failed to check create capability: %w", err)
	}
	if !allowed {
		return NewNotFoundError(fmt.Sprintf("you do not have permission to create %s objects", def.ObjectName()), nil).
			WithEngine(def.EngineKey()).WithCode(ErrCodeCreateDenied)
	}
	return nil
}

// Configurations returns an engine's builtins overlaid with its stored
// configurations.
func (e *Engine) Configurations(ctx context.Context, engineKey string) ([]*Configuration, error) {
	if _, err := e.definition(engineKey); err != nil {
		return nil, err
	}
	stored, err := e.store.ListConfigurations(ctx, engineKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load configurations: %w", err)
	}
	return mergeConfigurations(e.registry.Builtins(engineKey), stored), nil
}

func (e *Engine) resolveConfiguration(ctx context.Context, def Definition, req ResolveRequest, isCreate bool) (*Configuration, error) {
	list, err := e.Configurations(ctx, def.EngineKey())
	if err != nil {
		return nil, err
	}

	var cfg *Configuration
	switch {
	case req.ConfigKey != "":
		cfg = findConfiguration(list, req.ConfigKey)
		if cfg == nil {
			return nil, NewNotFoundError(fmt.Sprintf("no configuration %q", req.ConfigKey), nil).
				WithEngine(def.EngineKey()).WithCode(ErrCodeConfigurationNotFound)
		}
	case req.Kind == RequestKindComment || req.Kind == RequestKindParameters:
		cfg = findConfiguration(list, DefaultConfigurationKey)
		if cfg == nil {
			return nil, NewNoUsableConfigurationError("no default configuration").WithEngine(def.EngineKey())
		}
	case !isCreate:
		cfg = defaultEditConfiguration(list)
		if cfg == nil {
			return nil, NewNoUsableConfigurationError("no enabled edit form is available").
				WithEngine(def.EngineKey()).WithCode(ErrCodeNoDefaultEdit)
		}
	default:
		cfg = defaultCreateConfiguration(list)
		if cfg == nil {
			return nil, NewNoUsableConfigurationError("no enabled create form is available").
				WithEngine(def.EngineKey()).WithCode(ErrCodeNoDefaultCreate)
		}
	}

	if cfg.IsDisabled {
		return nil, NewFormDisabledError(fmt.Sprintf("form %q is disabled", cfg.Name)).
			WithEngine(def.EngineKey()).WithDetail("configuration", cfg.Identifier())
	}
	if req.ConfigKey != "" && !isCreate && !cfg.IsEdit {
		return nil, NewWrongFormKindError(fmt.Sprintf("form %q is not an edit form", cfg.Name)).
			WithEngine(def.EngineKey()).WithDetail("configuration", cfg.Identifier())
	}
	return cfg, nil
}

func (e *Engine) buildFields(def Definition, obj Object, cfg *Configuration, isCreate bool) (*FieldSet, error) {
	all := append([]*Field{}, def.BuildFields(obj)...)
	for _, ext := range e.registry.Extensions() {
		if ext.SupportsObject(def, obj) {
			all = append(all, ext.BuildFields(def, obj)...)
		}
	}
	all = append(all, newCommentField())

	fs := &FieldSet{byKey: make(map[string]*Field, len(all))}
	for _, f := range all {
		if f.createOnly && !isCreate {
			continue
		}
		if err := fs.Add(f); err != nil {
			if ce, ok := AsError(err); ok {
				ce.WithEngine(def.EngineKey())
			}
			return nil, err
		}
		f.bind(obj, cfg)
		f.readValueFromObject(obj)
	}
	return fs, nil
}

func (e *Engine) applyConfiguration(ctx context.Context, viewer Viewer, res *Resolution) error {
	cfg := res.Configuration
	res.Fields.reorder(cfg.FieldOrder)

	keys := make([]string, 0, len(cfg.Fields))
	for key := range cfg.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		custom := cfg.Fields[key]
		f, ok := res.Fields.Get(key)
		if !ok {
			e.logger.Debug().
				Str("engine", res.Definition.EngineKey()).
				Str("configuration", cfg.Identifier()).
				Str("field", key).
				Msg("Configuration customizes unknown field")
			continue
		}
		if custom.Hidden != nil {
			f.hidden = *custom.Hidden
		}
		if custom.Locked != nil {
			f.locked = *custom.Locked
		}
		if custom.Required != nil {
			f.required = *custom.Required
		}
		f.rules = append(f.rules, custom.Rules...)

		if !res.IsCreate {
			continue
		}
		if custom.Default != nil {
			v, err := f.kind.FromJSON(custom.Default)
			if err != nil {
				return NewConfigurationError(fmt.Sprintf("invalid default for field %q: %v", key, err)).
					WithEngine(res.Definition.EngineKey())
			}
			f.SetValue(v, SourceDefault)
		}
		if custom.DefaultScript != "" && e.scripts != nil {
			out, err := e.scripts.EvaluateDefault(ctx, custom.DefaultScript, map[string]any{
				"viewer": viewer.PHID,
				"roles":  viewer.Roles,
				"engine": res.Definition.EngineKey(),
				"field":  key,
				"value":  f.value,
			})
			if err != nil {
				return NewConfigurationError(fmt.Sprintf("default script for field %q failed: %v", key, err)).
					WithEngine(res.Definition.EngineKey())
			}
			v, err := f.kind.FromJSON(out)
			if err != nil {
				return NewConfigurationError(fmt.Sprintf("default script for field %q returned %T: %v", key, out, err)).
					WithEngine(res.Definition.EngineKey())
			}
			f.SetValue(v, SourceDefault)
		}
	}
	return nil
}
