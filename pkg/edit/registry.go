package edit

import (
	"fmt"
	"sort"
	"sync"
)

// EngineSettings are host-supplied settings for one engine.
type EngineSettings struct {
	// CreatePolicy overrides the create capability policy of the engine.
	CreatePolicy string

	// Configurations are appended to the definition's builtins.
	Configurations []*Configuration
}

type registration struct {
	def      Definition
	builtins []*Configuration
	settings EngineSettings
}

// Registry is the process-wide table of engines and field contributors. It is
// populated at startup and read-only after Freeze.
type Registry struct {
	mu         sync.RWMutex
	frozen     bool
	engines    map[string]*registration
	byPHIDType map[string]string
	byMonogram map[string]string
	extensions []FieldContributor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		engines:    make(map[string]*registration),
		byPHIDType: make(map[string]string),
		byMonogram: make(map[string]string),
	}
}

func (r *Registry) checkWritable() error {
	if r.frozen {
		return NewConfigurationError("registry is frozen")
	}
	return nil
}

// Register adds a definition after checking its builtin configurations.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWritable(); err != nil {
		return err
	}
	key := def.EngineKey()
	if key == "" {
		return NewConfigurationError("definition has an empty engine key")
	}
	if _, exists := r.engines[key]; exists {
		return NewConfigurationError(fmt.Sprintf("engine %q is already registered", key)).
			WithCode(ErrCodeDuplicateKey)
	}
	if !phidTypePattern(def.PHIDType()) {
		return NewConfigurationError(fmt.Sprintf("invalid PHID type %q", def.PHIDType())).WithEngine(key)
	}
	if other, exists := r.byPHIDType[def.PHIDType()]; exists {
		return NewConfigurationError(fmt.Sprintf("PHID type %q already used by %q", def.PHIDType(), other)).
			WithEngine(key).WithCode(ErrCodeDuplicateKey)
	}
	if m := def.Monogram(); m != "" {
		if other, exists := r.byMonogram[m]; exists {
			return NewConfigurationError(fmt.Sprintf("monogram %q already used by %q", m, other)).
				WithEngine(key).WithCode(ErrCodeDuplicateKey)
		}
	}

	builtins, err := validateBuiltins(key, def.BuiltinConfigurations())
	if err != nil {
		return err
	}

	r.engines[key] = &registration{def: def, builtins: builtins}
	r.byPHIDType[def.PHIDType()] = key
	if m := def.Monogram(); m != "" {
		r.byMonogram[m] = key
	}
	return nil
}

// MustRegister is Register that panics on error. For use from init code.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// RegisterExtension appends a field contributor. Contributors run in
// registration order.
func (r *Registry) RegisterExtension(ext FieldContributor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWritable(); err != nil {
		return err
	}
	for _, e := range r.extensions {
		if e.ExtensionKey() == ext.ExtensionKey() {
			return NewConfigurationError(fmt.Sprintf("extension %q is already registered", ext.ExtensionKey())).
				WithCode(ErrCodeDuplicateKey)
		}
	}
	r.extensions = append(r.extensions, ext)
	return nil
}

// Configure applies host settings to a registered engine. Extra
// configurations are re-checked together with the definition's builtins.
func (r *Registry) Configure(engineKey string, settings EngineSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWritable(); err != nil {
		return err
	}
	reg, ok := r.engines[engineKey]
	if !ok {
		return NewConfigurationError(fmt.Sprintf("unknown engine %q", engineKey)).WithCode(ErrCodeEngineNotFound)
	}

	all := append(append([]*Configuration{}, reg.def.BuiltinConfigurations()...), settings.Configurations...)
	builtins, err := validateBuiltins(engineKey, all)
	if err != nil {
		return err
	}
	reg.builtins = builtins
	reg.settings = settings
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the definition registered under engineKey.
func (r *Registry) Lookup(engineKey string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.engines[engineKey]
	if !ok {
		return nil, false
	}
	return reg.def, true
}

// ByPHIDType returns the definition editing objects of phidType.
func (r *Registry) ByPHIDType(phidType string) (Definition, bool) {
	r.mu.RLock()
	key, ok := r.byPHIDType[phidType]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Lookup(key)
}

// ByMonogram returns the definition using monogram.
func (r *Registry) ByMonogram(monogram string) (Definition, bool) {
	r.mu.RLock()
	key, ok := r.byMonogram[monogram]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Lookup(key)
}

// Definitions returns every definition sorted by engine key.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.engines))
	for _, reg := range r.engines {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].EngineKey() < defs[j].EngineKey() })
	return defs
}

// Extensions returns the contributors in registration order.
func (r *Registry) Extensions() []FieldContributor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]FieldContributor(nil), r.extensions...)
}

// Builtins returns copies of an engine's checked builtin configurations.
func (r *Registry) Builtins(engineKey string) []*Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.engines[engineKey]
	if !ok {
		return nil
	}
	out := make([]*Configuration, len(reg.builtins))
	for i, c := range reg.builtins {
		out[i] = c.Clone()
	}
	return out
}

// Settings returns the host settings of an engine.
func (r *Registry) Settings(engineKey string) EngineSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.engines[engineKey]; ok {
		return reg.settings
	}
	return EngineSettings{}
}

func phidTypePattern(t string) bool {
	if len(t) != 4 {
		return false
	}
	for _, c := range t {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
