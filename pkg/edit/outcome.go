package edit

// Outcome is the discriminated result of an engine entry point. Callers
// switch over the concrete types: *Saved, *Invalid, *NoEffect, *Rejected and
// *Documentation.
type Outcome interface {
	// Name is a stable outcome label used in logs and metrics.
	Name() string

	outcome()
}

// Saved reports an applied batch. Transactions is empty when the caller
// accepted a batch without effect.
type Saved struct {
	Object       Object
	Transactions []*Transaction
	URI          string
	Created      bool
}

// Invalid reports rejected values, one message per transaction type.
type Invalid struct {
	Errors []FieldError
	Err    *Error
}

// NoEffect reports a batch which would not change anything.
type NoEffect struct {
	Object Object
	URI    string
	Err    *Error
}

// Rejected reports why the request cannot proceed at all.
type Rejected struct {
	Reason  ErrorClass
	Code    string
	Message string
	Err     *Error
}

// Documentation lists the HTTP parameters an engine accepts.
type Documentation struct {
	EngineKey     string
	Configuration string
	Parameters    []ParameterDoc
	Types         []string
}

func (*Saved) Name() string         { return "saved" }
func (*Invalid) Name() string       { return "invalid" }
func (*NoEffect) Name() string      { return "no_effect" }
func (*Rejected) Name() string      { return "rejected" }
func (*Documentation) Name() string { return "documentation" }

func (*Saved) outcome()         {}
func (*Invalid) outcome()       {}
func (*NoEffect) outcome()      {}
func (*Rejected) outcome()      {}
func (*Documentation) outcome() {}

// Ref returns the identity of the saved object.
func (s *Saved) Ref() ObjectRef {
	h := s.Object.ObjectHeader()
	return ObjectRef{ID: h.ID, PHID: h.PHID}
}

// RPCResponse shapes the outcome for RPC callers.
func (s *Saved) RPCResponse() RPCResponse {
	resp := RPCResponse{Object: s.Ref(), Transactions: make([]TransactionRef, 0, len(s.Transactions))}
	for _, t := range s.Transactions {
		resp.Transactions = append(resp.Transactions, TransactionRef{ID: t.ID, PHID: t.PHID})
	}
	return resp
}

// MessageFor returns the error attached to transaction type txnType.
func (i *Invalid) MessageFor(txnType string) (string, bool) {
	for _, fe := range i.Errors {
		if fe.Type == txnType {
			return fe.Message, true
		}
	}
	return "", false
}

// outcomeFor converts an engine error into an outcome. Configuration and
// infrastructure errors are returned unchanged.
func outcomeFor(err error, obj Object, uri string) (Outcome, error) {
	e, ok := AsError(err)
	if !ok {
		return nil, err
	}
	switch e.Class {
	case ErrorClassValidation:
		return &Invalid{Errors: e.Fields, Err: e}, nil
	case ErrorClassNoEffect:
		return &NoEffect{Object: obj, URI: uri, Err: e}, nil
	case ErrorClassConfiguration:
		return nil, err
	default:
		return &Rejected{Reason: e.Class, Code: e.Code, Message: e.Message, Err: e}, nil
	}
}
