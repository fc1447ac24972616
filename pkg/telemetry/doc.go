// Package telemetry provides observability instrumentation for the edit engine.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing behind a single
// Telemetry value.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Wire it into the edit engine through an observer:
//
//	engine := edit.NewEngine(registry, edit.Options{
//	    Store:    store,
//	    Observer: telemetry.NewEditObserver(tel),
//	})
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("api")
//	logger.WithEngine("tasks.task").WithViewer(viewer.PHID).Info("Handling request")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Every edit request runs inside an "edit.<kind>" span carrying the engine
// key and the outcome name. Supported exporters are otlp and stdout.
//
// # Metrics
//
// The observer maintains:
//
//	editengine_edits_total{engine,kind,outcome}
//	editengine_edit_duration_seconds{engine,kind}
//	editengine_edits_in_flight{engine}
//	editengine_transactions_applied_total{engine,type}
//	editengine_validation_failures_total{engine,kind}
//	editengine_no_effect_total{engine,kind}
//	editengine_errors_by_class_total{class}
//	editengine_errors_by_code_total{code}
//	editengine_policy_decisions_total{capability,decision}
//
// Metrics are exposed through Metrics.Handler or a standalone server started
// with StartMetricsServer.
//
// # Event Publishing
//
// Object created and edited events, validation failures, rejections,
// configuration changes and policy reloads are published to subscribers:
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s %s\n", event.Type, event.ObjectPHID)
//	}, telemetry.FilterByEngine("tasks.task"))
//
// Event filters: FilterByLevel, FilterByType, FilterByEngine, FilterByObject
package telemetry
