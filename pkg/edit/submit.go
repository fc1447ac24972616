package edit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

func (e *Engine) track(ctx context.Context, engineKey string, kind RequestKind) (context.Context, func(Outcome, error)) {
	ctx, done := e.observer.StartEdit(ctx, engineKey, kind)
	return ctx, func(out Outcome, err error) {
		name := "error"
		if err == nil && out != nil {
			name = out.Name()
		}
		if err == nil {
			if r, ok := out.(*Rejected); ok && r.Err != nil {
				err = r.Err
			}
			if i, ok := out.(*Invalid); ok && i.Err != nil {
				err = i.Err
			}
		}
		done(name, err)
	}
}

// SubmitForm handles a web form submission, dispatching on its edit action.
func (e *Engine) SubmitForm(ctx context.Context, viewer Viewer, engineKey string, req *Request) (out Outcome, err error) {
	switch req.EditAction {
	case EditActionComment:
		return e.SubmitComment(ctx, viewer, engineKey, req)
	case EditActionParameters:
		return e.ParameterDocs(ctx, viewer, engineKey)
	case EditActionNoDefault:
		return &Rejected{
			Reason:  ErrorClassNoUsableConfiguration,
			Code:    ErrCodeNoDefaultCreate,
			Message: "no create form is enabled for this application",
		}, nil
	case EditActionNoCreate:
		return &Rejected{
			Reason:  ErrorClassPermission,
			Code:    ErrCodeCreateDenied,
			Message: "you do not have permission to create objects here",
		}, nil
	case EditActionNoManage:
		return &Rejected{
			Reason:  ErrorClassPermission,
			Code:    ErrCodeManageDenied,
			Message: "you do not have permission to manage forms here",
		}, nil
	case EditActionDefault, "":
	default:
		return &Rejected{
			Reason:  ErrorClassValidation,
			Code:    ErrCodeInvalidValue,
			Message: fmt.Sprintf("unknown edit action %q", req.EditAction),
		}, nil
	}

	kind := RequestKindEdit
	if req.ObjectIdentifier == "" {
		kind = RequestKindCreate
	}
	ctx, done := e.track(ctx, engineKey, kind)
	defer func() { done(out, err) }()

	return e.submitValues(ctx, viewer, engineKey, kind, req, func(f *Field) error {
		return f.ReadFromForm(req.Form)
	}, false)
}

// SubmitParameters handles a programmatic HTTP parameter batch. Edits of
// existing objects tolerate required fields the batch does not mention.
func (e *Engine) SubmitParameters(ctx context.Context, viewer Viewer, engineKey string, req *Request) (out Outcome, err error) {
	kind := RequestKindEdit
	if req.ObjectIdentifier == "" {
		kind = RequestKindCreate
	}
	ctx, done := e.track(ctx, engineKey, kind)
	defer func() { done(out, err) }()

	return e.submitValues(ctx, viewer, engineKey, kind, req, func(f *Field) error {
		return f.ReadFromParameters(req.Params)
	}, req.ObjectIdentifier != "")
}

func (e *Engine) submitValues(ctx context.Context, viewer Viewer, engineKey string, kind RequestKind, req *Request, read func(*Field) error, tolerateMissing bool) (Outcome, error) {
	res, err := e.Resolve(ctx, viewer, ResolveRequest{
		EngineKey:  engineKey,
		Kind:       kind,
		Identifier: req.ObjectIdentifier,
		ConfigKey:  req.ConfigKey,
		Template:   req.Template,
	})
	if err != nil {
		return outcomeFor(err, nil, "")
	}

	var readErrs []FieldError
	for _, f := range res.Fields.Fields() {
		if err := read(f); err != nil {
			readErrs = append(readErrs, FieldError{Type: f.txnType, FieldKey: f.key, Message: err.Error()})
		}
	}
	if len(readErrs) > 0 {
		return outcomeFor(NewValidationError(readErrs).WithEngine(engineKey), res.Object, "")
	}

	records := e.recordsFromFields(res)
	return e.apply(ctx, viewer, res, records, ApplyOptions{
		ContinueOnNoEffect:      req.Continue,
		ContinueOnMissingFields: tolerateMissing,
	})
}

func (e *Engine) recordsFromFields(res *Resolution) []MutationRecord {
	var records []MutationRecord
	if res.IsCreate {
		records = append(records, CreateRecord())
	}
	for _, f := range res.Fields.Fields() {
		records = append(records, f.MutationRecords(MutationRecord{})...)
	}
	return records
}

func (e *Engine) apply(ctx context.Context, viewer Viewer, res *Resolution, records []MutationRecord, opts ApplyOptions) (Outcome, error) {
	result, err := e.editor.Apply(ctx, viewer, res, records, opts)
	if err != nil {
		return outcomeFor(err, res.Object, res.URI())
	}
	return &Saved{
		Object:       result.Object,
		Transactions: result.Transactions,
		URI:          res.URI(),
		Created:      result.Created,
	}, nil
}

// ParameterDocs documents the HTTP parameters of an engine's default form.
func (e *Engine) ParameterDocs(ctx context.Context, viewer Viewer, engineKey string) (out Outcome, err error) {
	ctx, done := e.track(ctx, engineKey, RequestKindParameters)
	defer func() { done(out, err) }()

	res, err := e.Resolve(ctx, viewer, ResolveRequest{EngineKey: engineKey, Kind: RequestKindParameters})
	if err != nil {
		return outcomeFor(err, nil, "")
	}
	doc := &Documentation{
		EngineKey:     engineKey,
		Configuration: res.Configuration.Identifier(),
		Types:         res.Fields.TransactionTypes(),
	}
	for _, f := range res.Fields.Fields() {
		if f.AcceptsParameters() {
			doc.Parameters = append(doc.Parameters, f.ParameterDoc())
		}
	}
	return doc, nil
}

// SubmitComment applies a comment and its structured actions to an existing
// object. Viewing is enough to comment; actions also need edit.
func (e *Engine) SubmitComment(ctx context.Context, viewer Viewer, engineKey string, req *Request) (out Outcome, err error) {
	ctx, done := e.track(ctx, engineKey, RequestKindComment)
	defer func() { done(out, err) }()

	if req.ObjectIdentifier == "" {
		return &Rejected{
			Reason:  ErrorClassNotFound,
			Code:    ErrCodeObjectNotFound,
			Message: "comments require an existing object",
		}, nil
	}

	res, err := e.Resolve(ctx, viewer, ResolveRequest{
		EngineKey:  engineKey,
		Kind:       RequestKindComment,
		Identifier: req.ObjectIdentifier,
		ConfigKey:  req.ConfigKey,
	})
	if err != nil {
		return outcomeFor(err, nil, "")
	}

	if len(req.Actions) > 0 {
		allowed, err := e.checker.Allows(ctx, viewer, SubjectOf(res.Definition, res.Object), CapabilityEdit)
		if err != nil {
			return nil, fmt.Errorf("failed to check edit capability: %w", err)
		}
		if !allowed {
			return outcomeFor(NewPermissionError("you do not have permission to edit this object").
				WithEngine(engineKey).WithObject(res.Object.ObjectHeader().PHID).
				WithCode(ErrCodeEditDenied), res.Object, res.URI())
		}
	}

	var records []MutationRecord
	var readErrs []FieldError
	for _, action := range req.Actions {
		f, ok := res.Fields.ByTransactionType(action.Type)
		if !ok || !f.commentAction {
			e.logger.Debug().Str("engine", engineKey).Str("type", action.Type).Msg("Ignoring unknown comment action")
			continue
		}
		if err := f.ReadFromCommentAction(action); err != nil {
			readErrs = append(readErrs, FieldError{Type: action.Type, FieldKey: f.key, Message: err.Error()})
			continue
		}
		records = append(records, f.MutationRecords(MutationRecord{})...)
	}
	if len(readErrs) > 0 {
		return outcomeFor(NewValidationError(readErrs).WithEngine(engineKey), res.Object, res.URI())
	}

	if strings.TrimSpace(req.CommentText) != "" || len(records) == 0 {
		records = append(records, CommentRecord(req.CommentText))
	}

	return e.apply(ctx, viewer, res, records, ApplyOptions{
		ContinueOnNoEffect:      req.Continue,
		ContinueOnMissingFields: true,
	})
}

// SubmitRPC applies an ordered batch of typed transactions. Unknown types
// fail the whole batch before anything is applied; a batch without effect
// succeeds without persisting.
func (e *Engine) SubmitRPC(ctx context.Context, viewer Viewer, engineKey string, req RPCRequest) (out Outcome, err error) {
	ctx, done := e.track(ctx, engineKey, RequestKindRPC)
	defer func() { done(out, err) }()

	res, err := e.Resolve(ctx, viewer, ResolveRequest{
		EngineKey:  engineKey,
		Kind:       RequestKindRPC,
		Identifier: req.ObjectIdentifier,
	})
	if err != nil {
		return outcomeFor(err, nil, "")
	}

	var unknown []FieldError
	for _, txn := range req.Transactions {
		if f, ok := res.Fields.ByTransactionType(txn.Type); !ok || !f.AcceptsRPC() {
			unknown = append(unknown, FieldError{
				Type:    txn.Type,
				Message: fmt.Sprintf("transaction type %q is not valid; valid types are: %s", txn.Type, strings.Join(res.Fields.TransactionTypes(), ", ")),
			})
		}
	}
	if len(unknown) > 0 {
		verr := NewValidationError(unknown).WithEngine(engineKey).WithCode(ErrCodeUnknownType)
		return outcomeFor(verr, res.Object, res.URI())
	}

	var records []MutationRecord
	if res.IsCreate {
		records = append(records, CreateRecord())
	}
	var readErrs []FieldError
	for _, txn := range req.Transactions {
		f, _ := res.Fields.ByTransactionType(txn.Type)
		if err := f.ReadFromRPC(txn.Value); err != nil {
			readErrs = append(readErrs, FieldError{Type: txn.Type, FieldKey: f.key, Message: err.Error()})
			continue
		}
		if f.key == CommentFieldKey {
			records = append(records, CommentRecord(fmt.Sprint(f.value)))
			continue
		}
		records = append(records, f.MutationRecords(MutationRecord{})...)
	}
	if len(readErrs) > 0 {
		return outcomeFor(NewValidationError(readErrs).WithEngine(engineKey), res.Object, res.URI())
	}

	return e.apply(ctx, viewer, res, records, ApplyOptions{
		ContinueOnNoEffect:      true,
		ContinueOnMissingFields: !res.IsCreate,
	})
}

// SaveConfiguration stores a configuration for an engine. The viewer needs
// the manage capability.
func (e *Engine) SaveConfiguration(ctx context.Context, viewer Viewer, cfg *Configuration) error {
	def, err := e.definition(cfg.EngineKey)
	if err != nil {
		return err
	}
	allowed, err := e.checker.Allows(ctx, viewer, e.engineSubject(def, CapabilityManage, ""), CapabilityManage)
	if err != nil {
		return fmt.Errorf("failed to check manage capability: %w", err)
	}
	if !allowed {
		return NewPermissionError("you do not have permission to manage forms").
			WithEngine(cfg.EngineKey).WithCode(ErrCodeManageDenied)
	}
	if cfg.BuiltinKey != "" && findConfiguration(e.registry.Builtins(cfg.EngineKey), cfg.BuiltinKey) == nil {
		return NewNotFoundError(fmt.Sprintf("no builtin configuration %q", cfg.BuiltinKey), nil).
			WithEngine(cfg.EngineKey).WithCode(ErrCodeConfigurationNotFound)
	}
	if err := e.store.SaveConfiguration(ctx, cfg, viewer.PHID); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	e.logger.Info().
		Str("engine", cfg.EngineKey).
		Str("configuration", cfg.Identifier()).
		Str("actor", viewer.PHID).
		Msg("Saved configuration")
	return nil
}

// ListTransactions returns the mutation log of an object the viewer can see.
func (e *Engine) ListTransactions(ctx context.Context, viewer Viewer, engineKey, identifier string) ([]*Transaction, error) {
	resolver, err := e.Resolver(engineKey)
	if err != nil {
		return nil, err
	}
	obj, err := resolver.Resolve(ctx, viewer, identifier, CapabilityView)
	if err != nil {
		return nil, err
	}
	return e.store.ListTransactions(ctx, obj.ObjectHeader().PHID)
}

// FormValues encodes a resolution's current field values as a form body.
func FormValues(fields *FieldSet) url.Values {
	values := url.Values{}
	for _, f := range fields.Fields() {
		switch v := f.value.(type) {
		case string:
			values.Set(f.key, v)
		case []string:
			values[f.key] = append([]string(nil), v...)
		default:
			values.Set(f.key, fmt.Sprint(v))
		}
	}
	return values
}
