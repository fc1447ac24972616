package edit

import "net/url"

// Request is a form, parameter or comment submission.
type Request struct {
	// EditAction selects the form submission behaviour.
	EditAction EditAction `json:"edit_action,omitempty"`

	// ObjectIdentifier names the object to edit. Empty creates a new object.
	ObjectIdentifier string `json:"object,omitempty"`

	// ConfigKey explicitly selects a configuration.
	ConfigKey string `json:"config,omitempty"`

	// Template names an object whose copyable fields seed a new object.
	Template string `json:"template,omitempty"`

	// Continue accepts a submission that has no effect.
	Continue bool `json:"continue,omitempty"`

	// Form is the form-encoded body.
	Form url.Values `json:"-"`

	// Params is the independent HTTP parameter namespace.
	Params url.Values `json:"-"`

	// CommentText is the free-text body of a comment submission.
	CommentText string `json:"comment,omitempty"`

	// Actions are structured changes submitted with a comment.
	Actions []CommentAction `json:"actions,omitempty"`
}

// CommentAction is one structured change submitted with a comment.
type CommentAction struct {
	Type         string `json:"type"`
	Value        any    `json:"value"`
	InitialValue any    `json:"initialValue,omitempty"`
}

// RPCRequest is an ordered batch of typed transactions.
type RPCRequest struct {
	// ObjectIdentifier names the object to edit. Empty creates a new object.
	ObjectIdentifier string `json:"objectIdentifier,omitempty" yaml:"objectIdentifier,omitempty"`

	Transactions []RPCTransaction `json:"transactions" yaml:"transactions"`
}

// RPCTransaction is one descriptor of an RPC batch.
type RPCTransaction struct {
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
}

// RPCResponse is the result of an applied RPC batch.
type RPCResponse struct {
	Object       ObjectRef        `json:"object"`
	Transactions []TransactionRef `json:"transactions"`
}
