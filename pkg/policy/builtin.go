package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		capabilityPolicy(),
	}
}

// capabilityPolicy maps an object's policy value for the requested
// capability onto the viewer. Capabilities without an explicit value fall
// back to the defaults table.
func capabilityPolicy() Policy {
	return Policy{
		Name:        "capabilities",
		Description: "Grants capabilities from per-object policy values (public, users, admin, author, role:<name>, a viewer PHID)",
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"capabilities"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package editengine.capabilities

import rego.v1

default allow := false

defaults := {
	"view": "users",
	"edit": "users",
	"create": "users",
	"manage": "admin",
}

policy := p if {
	p := object.get(input.subject.policies, input.capability, "")
	p != ""
} else := object.get(defaults, input.capability, "no-one")

logged_in if input.viewer.phid != ""

allow if input.viewer.omnipotent

allow if policy == "public"

allow if {
	policy == "users"
	logged_in
}

allow if {
	policy == "admin"
	"admin" in input.viewer.roles
}

allow if {
	policy == "author"
	logged_in
	input.viewer.phid == input.subject.author
}

allow if {
	startswith(policy, "PHID-")
	input.viewer.phid == policy
}

allow if {
	startswith(policy, "role:")
	substring(policy, 5, -1) in input.viewer.roles
}

deny contains reason if {
	object.get(input.subject.policies, input.capability, "") == "no-one"
	reason := sprintf("%s is disabled on this object", [input.capability])
}

# Administrators manage everything not explicitly closed with no-one.
allow if {
	input.capability == "manage"
	"admin" in input.viewer.roles
}
`,
	}
}
