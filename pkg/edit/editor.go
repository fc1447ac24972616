package edit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionPHIDType is the global id type of persisted transactions.
const TransactionPHIDType = "XACT"

// ApplyOptions tune how the Editor treats degenerate batches.
type ApplyOptions struct {
	// ContinueOnNoEffect turns an all no-op batch into a success which
	// persists nothing.
	ContinueOnNoEffect bool

	// ContinueOnMissingFields tolerates required fields without a value.
	ContinueOnMissingFields bool
}

// AppliedResult is the outcome of a successful Apply.
type AppliedResult struct {
	// Object is the (possibly newly created) object.
	Object Object

	// Transactions are the persisted records, in application order.
	Transactions []*Transaction

	// Created is set when the batch persisted the object for the first time.
	Created bool

	// NoEffect is set when nothing was persisted.
	NoEffect bool
}

// Editor applies ordered mutation batches atomically.
type Editor struct {
	store    Store
	rules    RuleEvaluator
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEditor creates an editor persisting through store.
func NewEditor(store Store, rules RuleEvaluator, observer Observer, logger zerolog.Logger) *Editor {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Editor{
		store:    store,
		rules:    rules,
		observer: observer,
		logger:   logger.With().Str("component", "editor").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// pendingRecord is a record with its computed old value and effect.
type pendingRecord struct {
	rec    MutationRecord
	field  *Field
	old    any
	effect bool
}

// Apply validates records against target and, when every record is valid,
// applies them and persists the object and its log entries together.
// Nothing is applied when validation fails.
func (e *Editor) Apply(ctx context.Context, viewer Viewer, target *Resolution, records []MutationRecord, opts ApplyOptions) (*AppliedResult, error) {
	obj := target.Object
	engineKey := target.Definition.EngineKey()
	header := obj.ObjectHeader()
	persisted := header.IsPersisted()

	if len(records) == 0 {
		if !opts.ContinueOnNoEffect {
			return nil, NewNoEffectError(0, false).WithEngine(engineKey).WithObject(header.PHID)
		}
		return &AppliedResult{Object: obj, NoEffect: true}, nil
	}

	if errs := e.checkStructure(target, records); len(errs) > 0 {
		return nil, NewValidationError(errs).WithEngine(engineKey).WithObject(header.PHID)
	}

	pending, errs := e.evaluate(target, records, opts)
	if len(errs) > 0 {
		e.logger.Debug().
			Str("engine", engineKey).
			Str("object", header.PHID).
			Int("errors", len(errs)).
			Msg("Rejected transactions")
		return nil, NewValidationError(errs).WithEngine(engineKey).WithObject(header.PHID)
	}

	effective := make([]pendingRecord, 0, len(pending))
	hasComment := false
	for _, p := range pending {
		if p.rec.Type == TypeComment {
			hasComment = true
		}
		if p.effect {
			effective = append(effective, p)
		}
	}
	if len(effective) == 0 {
		if !opts.ContinueOnNoEffect {
			return nil, NewNoEffectError(len(records), hasComment).WithEngine(engineKey).WithObject(header.PHID)
		}
		return &AppliedResult{Object: obj, NoEffect: true}, nil
	}

	return e.commit(ctx, viewer, target, effective, persisted)
}

func (e *Editor) checkStructure(target *Resolution, records []MutationRecord) []FieldError {
	var errs []FieldError
	persisted := target.Object.ObjectHeader().IsPersisted()
	hasCreate := false

	for i, rec := range records {
		switch rec.Type {
		case TypeCreate:
			switch {
			case i != 0:
				errs = append(errs, FieldError{Type: TypeCreate, Message: "create must be the first transaction"})
			case persisted:
				errs = append(errs, FieldError{Type: TypeCreate, Message: "object has already been created"})
			default:
				hasCreate = true
			}
		case TypeComment:
		default:
			if _, ok := target.Fields.ByTransactionType(rec.Type); !ok {
				errs = append(errs, FieldError{Type: rec.Type, Message: fmt.Sprintf("unknown transaction type %q", rec.Type)})
			}
		}
	}

	if !persisted && !hasCreate {
		errs = append(errs, FieldError{Type: TypeCreate, Message: "a new object requires a create transaction"})
	}
	return errs
}

// evaluate computes old values and effects in order, and validates every
// record without touching the object.
func (e *Editor) evaluate(target *Resolution, records []MutationRecord, opts ApplyOptions) ([]pendingRecord, []FieldError) {
	obj := target.Object
	current := make(map[string]any)
	valueOf := func(f *Field) any {
		if v, ok := current[f.key]; ok {
			return v
		}
		return f.currentObjectValue(obj)
	}

	var errs []FieldError
	pending := make([]pendingRecord, 0, len(records))

	for _, rec := range records {
		switch rec.Type {
		case TypeCreate:
			pending = append(pending, pendingRecord{rec: rec, effect: true})
			continue
		case TypeComment:
			text, ok := rec.Value.(string)
			if !ok && rec.Value != nil {
				errs = append(errs, FieldError{Type: TypeComment, FieldKey: CommentFieldKey, Message: "comment must be text"})
				continue
			}
			rec.Value = text
			field, _ := target.Fields.Get(CommentFieldKey)
			pending = append(pending, pendingRecord{rec: rec, field: field, effect: strings.TrimSpace(text) != ""})
			continue
		}

		f, _ := target.Fields.ByTransactionType(rec.Type)
		value, err := f.kind.FromJSON(rec.Value)
		if err == nil {
			err = f.kind.Validate(value)
		}
		if err != nil {
			errs = append(errs, FieldError{Type: rec.Type, FieldKey: f.key, Message: err.Error()})
			continue
		}
		if msg := e.checkRules(f, value); msg != "" {
			errs = append(errs, FieldError{Type: rec.Type, FieldKey: f.key, Message: msg})
			continue
		}

		rec.Value = value
		old := valueOf(f)
		pending = append(pending, pendingRecord{
			rec:    rec,
			field:  f,
			old:    old,
			effect: !f.kind.Equal(old, value),
		})
		current[f.key] = value
	}

	for _, f := range target.Fields.Fields() {
		if !f.required || f.txnType == "" {
			continue
		}
		if f.kind.IsEmpty(valueOf(f)) {
			if opts.ContinueOnMissingFields {
				continue
			}
			errs = append(errs, FieldError{
				Type:     f.txnType,
				FieldKey: f.key,
				Message:  fmt.Sprintf("%s is required", f.label),
				Missing:  true,
			})
		}
	}
	return pending, errs
}

func (e *Editor) checkRules(f *Field, value any) string {
	if e.rules == nil {
		return ""
	}
	for _, rule := range f.rules {
		ok, err := e.rules.Check(rule, value)
		if err != nil {
			return fmt.Sprintf("rule %q could not be evaluated: %v", rule, err)
		}
		if !ok {
			return fmt.Sprintf("%s does not satisfy %q", f.label, rule)
		}
	}
	return ""
}

func (e *Editor) commit(ctx context.Context, viewer Viewer, target *Resolution, effective []pendingRecord, persisted bool) (*AppliedResult, error) {
	def := target.Definition
	obj := target.Object
	header := obj.ObjectHeader()
	now := e.now()

	for _, p := range effective {
		if p.field != nil && p.rec.Type != TypeComment {
			p.field.applyTo(obj, p.rec.Value)
		}
	}

	if !persisted {
		if header.PHID == "" {
			header.PHID = NewPHID(def.PHIDType())
		}
		if header.AuthorPHID == "" {
			header.AuthorPHID = viewer.PHID
		}
		header.CreatedAt = now
	}
	header.UpdatedAt = now

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", def.ObjectName(), err)
	}
	record := &ObjectRecord{
		ID:         header.ID,
		PHID:       header.PHID,
		Type:       def.PHIDType(),
		AuthorPHID: header.AuthorPHID,
		Data:       data,
		CreatedAt:  header.CreatedAt,
		UpdatedAt:  now,
	}

	groupID := uuid.NewString()
	txns := make([]*Transaction, 0, len(effective))
	types := make([]string, 0, len(effective))
	for _, p := range effective {
		txn := &Transaction{
			PHID:       NewPHID(TransactionPHIDType),
			ObjectPHID: header.PHID,
			GroupID:    groupID,
			Type:       p.rec.Type,
			FieldKey:   p.rec.FieldKey,
			IsDefault:  p.rec.IsDefault,
			AuthorPHID: viewer.PHID,
			CreatedAt:  now,
		}
		if p.rec.Type != TypeCreate {
			if txn.OldValue, err = encodeValue(p.old); err != nil {
				return nil, err
			}
			if txn.NewValue, err = encodeValue(p.rec.Value); err != nil {
				return nil, err
			}
		}
		txns = append(txns, txn)
		types = append(types, p.rec.Type)
	}

	err = e.store.InTx(ctx, func(tx StoreTx) error {
		if persisted {
			if err := tx.UpdateObject(ctx, record); err != nil {
				return err
			}
		} else {
			id, err := tx.InsertObject(ctx, record)
			if err != nil {
				return err
			}
			header.ID = id
			for _, t := range txns {
				t.ObjectPHID = header.PHID
			}
		}
		return tx.AppendTransactions(ctx, txns)
	})
	if err != nil {
		if !persisted {
			header.ID = 0
		}
		return nil, fmt.Errorf("failed to apply transactions to %s: %w", header.PHID, err)
	}

	e.observer.TransactionsApplied(ctx, def.EngineKey(), header.PHID, !persisted, types)
	e.logger.Info().
		Str("engine", def.EngineKey()).
		Str("object", header.PHID).
		Str("group", groupID).
		Int("transactions", len(txns)).
		Bool("created", !persisted).
		Msg("Applied transactions")

	return &AppliedResult{Object: obj, Transactions: txns, Created: !persisted}, nil
}

func encodeValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction value: %w", err)
	}
	return data, nil
}
