package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/api"
	"github.com/openfroyo/editengine/pkg/policy"
	"github.com/openfroyo/editengine/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var (
		addr        string
		environment string
		watch       bool
		tracing     string
		events      bool
		eventsLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the edit HTTP API",
		Long: `Serve form, parameter, comment and batch edits over HTTP.

The acting viewer of each request is taken from the X-Viewer and
X-Viewer-Roles headers. Prometheus metrics are served on /metrics.`,
		Example: `  # Serve on the default address
  editengine serve --forms ./forms

  # Reload policies when they change, export traces to stdout
  editengine serve --policies ./policies --watch --tracing stdout`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetry.DefaultConfig()
			switch environment {
			case "production":
				cfg = telemetry.ProductionConfig()
			case "development":
				cfg = telemetry.DevelopmentConfig()
			case "":
			default:
				return fmt.Errorf("unknown environment %q", environment)
			}
			cfg.ServiceVersion = version
			cfg.Logging.Output = "stderr"
			if tracing != "" {
				cfg.Tracing.Enabled = tracing != "none"
				cfg.Tracing.Exporter = tracing
			}
			cfg.Events.Enabled = events

			tel, err := telemetry.NewTelemetry(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()

			if events {
				tel.Events.Subscribe(func(e telemetry.Event) {
					log.Info().
						Str("event", e.Type).
						Str("source", e.Source).
						Interface("data", e.Data).
						Msg(e.Message)
				}, telemetry.FilterByLevel(eventsLevel))
			}

			a, err := openApp(ctx, tel, !watch)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch && len(policyPaths) > 0 {
				loader := policy.NewLoader(log.Logger)
				onReload := func(err error) {
					path := strings.Join(policyPaths, ",")
					if perr := tel.Events.PublishPolicyReloaded(path, err); perr != nil {
						log.Warn().Err(perr).Msg("Failed to publish policy event")
					}
				}
				if err := loader.WatchEngine(ctx, a.policies, policyPaths, onReload); err != nil {
					return fmt.Errorf("failed to watch policies: %w", err)
				}
				defer loader.StopWatching()
			}

			log.Info().
				Str("addr", addr).
				Str("db", dbPath).
				Int("engines", len(a.registry.Definitions())).
				Int("policies", len(a.policies.ListPolicies())).
				Msg("Starting edit server")

			server := api.NewServer(a.engine, log.Logger, api.WithTelemetry(tel))
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&environment, "env", "", "telemetry preset: development or production")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload policies when their files change")
	cmd.Flags().StringVar(&tracing, "tracing", "", "trace exporter: none, stdout or otlp")
	cmd.Flags().BoolVar(&events, "events", false, "publish edit events to the log")
	cmd.Flags().StringVar(&eventsLevel, "events-level", "info", "minimum level of logged events")

	return cmd
}
