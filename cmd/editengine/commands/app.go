package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/editengine/pkg/config"
	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/extensions"
	"github.com/openfroyo/editengine/pkg/policy"
	"github.com/openfroyo/editengine/pkg/rules"
	"github.com/openfroyo/editengine/pkg/stores"
	"github.com/openfroyo/editengine/pkg/tasks"
	"github.com/openfroyo/editengine/pkg/telemetry"
)

// scriptTimeout bounds every Starlark default script.
const scriptTimeout = 2 * time.Second

// app holds the wired components a command works with.
type app struct {
	store    *stores.SQLiteStore
	registry *edit.Registry
	forms    *config.FormsLoader
	policies *policy.Engine
	engine   *edit.Engine
}

// newRegistry registers the built-in engines and extensions.
func newRegistry() (*edit.Registry, error) {
	reg := edit.NewRegistry()
	if err := reg.Register(tasks.NewDefinition("/tasks")); err != nil {
		return nil, err
	}
	if err := reg.RegisterExtension(extensions.NewSubscriptions()); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadForms parses the --forms sources, if any, and applies them to reg.
func loadForms(ctx context.Context, loader *config.FormsLoader, reg *edit.Registry) error {
	if len(formSources) == 0 {
		return nil
	}
	parsed, err := loader.Parse(ctx, formSources)
	if err != nil {
		return fmt.Errorf("failed to parse forms: %w", err)
	}
	for _, ve := range parsed.Errors {
		if ve.Severity != "error" {
			log.Warn().Str("problem", ve.String()).Msg("Forms warning")
		}
	}
	if err := loader.Apply(reg, parsed); err != nil {
		return err
	}
	log.Debug().Strs("files", parsed.SourceFiles).Msg("Forms applied")
	return nil
}

// openApp opens the database and wires the edit engine. tel may be nil.
// When loadPolicies is false the caller installs policies itself.
func openApp(ctx context.Context, tel *telemetry.Telemetry, loadPolicies bool) (*app, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	a, err := wire(ctx, store, tel, loadPolicies)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, store *stores.SQLiteStore, tel *telemetry.Telemetry, loadPolicies bool) (*app, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to register engines: %w", err)
	}

	evaluator, err := rules.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule evaluator: %w", err)
	}
	forms := config.NewFormsLoader(evaluator)
	if err := loadForms(ctx, forms, reg); err != nil {
		return nil, err
	}
	reg.Freeze()

	logger := log.Logger
	if tel != nil {
		logger = tel.Logger.Zerolog()
	}

	var policyOpts []policy.Option
	if tel != nil && tel.Metrics != nil {
		policyOpts = append(policyOpts, policy.WithDecisionHook(tel.Metrics.RecordPolicyDecision))
	}
	policies, err := policy.NewEngine(logger, policyOpts...)
	if err != nil {
		return nil, err
	}
	if loadPolicies && len(policyPaths) > 0 {
		if err := policies.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}

	opts := edit.Options{
		Store:   store,
		Checker: policies,
		Scripts: config.NewStarlarkEvaluator(scriptTimeout),
		Rules:   evaluator,
		Logger:  logger,
	}
	if tel != nil {
		opts.Observer = telemetry.NewEditObserver(tel)
	}

	return &app{
		store:    store,
		registry: reg,
		forms:    forms,
		policies: policies,
		engine:   edit.NewEngine(reg, opts),
	}, nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.store.Close()
}

// currentViewer builds the acting viewer from the global flags.
func currentViewer() edit.Viewer {
	return edit.Viewer{PHID: viewerPHID, Roles: viewerRoles, Omnipotent: omnipotent}
}
