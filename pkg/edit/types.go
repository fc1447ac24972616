package edit

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capability is an access right checked against an object or engine.
type Capability string

const (
	// CapabilityView allows reading an object.
	CapabilityView Capability = "view"

	// CapabilityEdit allows mutating an existing object.
	CapabilityEdit Capability = "edit"

	// CapabilityCreate allows creating new objects through an engine.
	CapabilityCreate Capability = "create"

	// CapabilityManage allows changing an engine's stored configurations.
	CapabilityManage Capability = "manage"
)

// RequestKind identifies which input surface a request arrived on.
type RequestKind string

const (
	// RequestKindCreate is a web form submission without an identifier.
	RequestKindCreate RequestKind = "create"

	// RequestKindEdit is a web form submission for an existing object.
	RequestKindEdit RequestKind = "edit"

	// RequestKindComment is a comment submission with optional actions.
	RequestKindComment RequestKind = "comment"

	// RequestKindParameters is an HTTP parameter batch or its documentation.
	RequestKindParameters RequestKind = "parameters"

	// RequestKindRPC is an ordered batch of typed RPC transactions.
	RequestKindRPC RequestKind = "rpc"
)

// EditAction selects the behaviour of a form submission.
type EditAction string

const (
	EditActionDefault    EditAction = "default"
	EditActionComment    EditAction = "comment"
	EditActionParameters EditAction = "parameters"
	EditActionNoDefault  EditAction = "nodefault"
	EditActionNoCreate   EditAction = "nocreate"
	EditActionNoManage   EditAction = "nomanage"
)

// ValueSource records where a field's current value came from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceTemplate ValueSource = "template"
	SourceSubmit   ValueSource = "submit"
	SourceRPC      ValueSource = "rpc"
	SourceComment  ValueSource = "comment"
)

// Viewer is the acting user of a request.
type Viewer struct {
	// PHID identifies the user. An empty PHID is a logged-out viewer.
	PHID string `json:"phid"`

	// Roles are coarse grants such as "admin".
	Roles []string `json:"roles,omitempty"`

	// Omnipotent viewers bypass capability checks. Used by tooling.
	Omnipotent bool `json:"omnipotent,omitempty"`
}

// HasRole reports whether the viewer carries role.
func (v Viewer) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// OmnipotentViewer returns a viewer which passes every capability check.
func OmnipotentViewer() Viewer {
	return Viewer{PHID: "PHID-USER-omnipotent", Omnipotent: true}
}

// Header is the identity shared by every editable object. Domain types embed
// it and gain the Object interface.
type Header struct {
	ID         int64  `json:"-"`
	PHID       string `json:"-"`
	AuthorPHID string `json:"-"`

	// Policies optionally overrides the capability policies for this object,
	// keyed by capability ("users", "admin", "author", "no-one", a PHID...).
	Policies map[Capability]string `json:"policies,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// ObjectHeader implements Object.
func (h *Header) ObjectHeader() *Header {
	return h
}

// IsPersisted reports whether the object has been stored.
func (h *Header) IsPersisted() bool {
	return h.ID != 0
}

// Object is a domain entity the engine can create and edit.
type Object interface {
	ObjectHeader() *Header
}

const phidRandomLength = 20

var phidPattern = regexp.MustCompile(`^PHID-[A-Z]{4}-\S+$`)

// NewPHID generates a global id for an object of the given four letter type.
func NewPHID(phidType string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PHID-" + phidType + "-" + random[:phidRandomLength]
}

// IsPHID reports whether s is shaped like a global id.
func IsPHID(s string) bool {
	return phidPattern.MatchString(s)
}

// PHIDType returns the type component of a global id, or "" when s is not one.
func PHIDType(s string) string {
	if !IsPHID(s) {
		return ""
	}
	return s[5:9]
}
