package policy

import (
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Package is the Rego package every capability policy contributes to.
const Package = "editengine.capabilities"

// Policy values understood by the built-in capability policy. Any other value
// starting with "PHID-" grants exactly that viewer, and "role:<name>" grants
// viewers holding the role.
const (
	PolicyPublic = "public"
	PolicyUsers  = "users"
	PolicyAdmin  = "admin"
	PolicyAuthor = "author"
	PolicyNoOne  = "no-one"

	RolePrefix = "role:"
)

// Policy represents a Rego module contributing to the capability decision.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"-"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the document policies are evaluated against.
type Input struct {
	Viewer     ViewerInput  `json:"viewer"`
	Subject    SubjectInput `json:"subject"`
	Capability string       `json:"capability"`
}

// ViewerInput describes the acting viewer.
type ViewerInput struct {
	PHID       string   `json:"phid"`
	Roles      []string `json:"roles"`
	Omnipotent bool     `json:"omnipotent"`
}

// SubjectInput describes the object or engine a capability is checked on.
type SubjectInput struct {
	Engine   string            `json:"engine"`
	Type     string            `json:"type"`
	PHID     string            `json:"phid"`
	Author   string            `json:"author"`
	Policies map[string]string `json:"policies"`
}

// Decision is the result of checking one capability.
type Decision struct {
	Capability edit.Capability `json:"capability"`
	Allowed    bool            `json:"allowed"`
	Reasons    []string        `json:"reasons,omitempty"`
}

// NewInput builds the evaluation input for one capability. Nil collections
// become empty so policies never see null.
func NewInput(viewer edit.Viewer, subject edit.PolicySubject, capability edit.Capability) *Input {
	roles := viewer.Roles
	if roles == nil {
		roles = []string{}
	}
	policies := make(map[string]string, len(subject.Policies))
	for c, p := range subject.Policies {
		policies[string(c)] = p
	}
	return &Input{
		Viewer: ViewerInput{
			PHID:       viewer.PHID,
			Roles:      roles,
			Omnipotent: viewer.Omnipotent,
		},
		Subject: SubjectInput{
			Engine:   subject.EngineKey,
			Type:     subject.ObjectType,
			PHID:     subject.PHID,
			Author:   subject.AuthorPHID,
			Policies: policies,
		},
		Capability: string(capability),
	}
}
