package telemetry

import (
	"context"
	"errors"

	"github.com/openfroyo/editengine/pkg/edit"
)

// EditObserver reports edit engine activity to logs, traces, metrics and
// events. It implements edit.Observer.
type EditObserver struct {
	tel    *Telemetry
	logger *Logger
}

var _ edit.Observer = (*EditObserver)(nil)

// NewEditObserver creates an observer backed by tel.
func NewEditObserver(tel *Telemetry) *EditObserver {
	return &EditObserver{
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("edit"),
	}
}

// StartEdit opens a span for an edit request and returns the func that
// closes it.
func (o *EditObserver) StartEdit(ctx context.Context, engineKey string, kind edit.RequestKind) (context.Context, func(string, error)) {
	spanCtx, span := o.tel.Tracer.StartEditSpan(ctx, engineKey, string(kind))
	timer := NewTimer()
	o.tel.Metrics.EditStarted(engineKey)

	return spanCtx, func(outcome string, err error) {
		defer span.End()
		o.tel.Metrics.EditFinished(engineKey)
		o.tel.Metrics.RecordEdit(engineKey, string(kind), outcome, timer.Duration())
		span.SetAttributes(AttrOutcome.String(outcome))

		logger := o.logger.WithEdit(engineKey, kind).WithOutcome(outcome, timer.Duration())
		if viewer := ViewerFromContext(ctx); viewer != "" {
			logger = logger.WithViewer(viewer)
		}

		if err == nil {
			RecordSuccess(span)
			logger.Debug("Edit finished")
			return
		}

		var ee *edit.Error
		if errors.As(err, &ee) {
			o.tel.Metrics.RecordError(string(ee.Class), ee.Code)
			span.SetAttributes(AttrErrorClass.String(string(ee.Class)), AttrErrorCode.String(ee.Code))
			o.publishFailure(ctx, engineKey, outcome, ee)
		} else {
			o.tel.Metrics.RecordError("internal", "")
		}

		// Refusals carried in an outcome leave the span OK.
		if ee != nil && outcome != "error" {
			RecordSuccess(span)
			logger.WithError(err).Info("Edit refused")
			return
		}
		RecordError(span, err)
		logger.WithError(err).Error("Edit failed")
	}
}

func (o *EditObserver) publishFailure(ctx context.Context, engineKey, outcome string, ee *edit.Error) {
	switch outcome {
	case "invalid":
		types := make([]string, 0, len(ee.Fields))
		for _, f := range ee.Fields {
			types = append(types, f.Type)
		}
		_ = o.tel.Events.PublishEditInvalid(engineKey, ee.Object, types)
	case "rejected":
		_ = o.tel.Events.PublishEditRejected(engineKey, ViewerFromContext(ctx), ee.Code, ee.Message)
	}
}

// TransactionsApplied counts the committed transactions and publishes an
// object event.
func (o *EditObserver) TransactionsApplied(ctx context.Context, engineKey, objectPHID string, created bool, types []string) {
	o.tel.Metrics.RecordTransactions(engineKey, types)
	AddTransactionEvent(SpanFromContext(ctx), engineKey, types)
	_ = o.tel.Events.PublishObjectEdited(engineKey, objectPHID, ViewerFromContext(ctx), created, types)
}
