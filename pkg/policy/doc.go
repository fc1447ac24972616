// Package policy decides edit engine capabilities with Open Policy Agent.
//
// Every object carries a policy value per capability (view, edit, create,
// manage). The built-in Rego module in package editengine.capabilities maps
// those values onto the viewer:
//
//	public         anyone, including logged-out viewers
//	users          any logged-in viewer
//	admin          viewers holding the admin role
//	author         the object's author
//	role:<name>    viewers holding the named role
//	PHID-USER-...  exactly that viewer
//	no-one         nobody except omnipotent viewers
//
// Capabilities without a value fall back to users, except manage which
// falls back to admin.
//
// Custom policies are Rego modules in the same package. They may add allow
// rules or deny reasons:
//
//	package editengine.capabilities
//
//	import rego.v1
//
//	deny contains "tasks are frozen" if {
//	    input.subject.engine == "tasks.task"
//	    input.capability == "edit"
//	    not "release-manager" in input.viewer.roles
//	}
//
// A capability is granted when some allow rule holds and no deny reason
// does. Omnipotent viewers ignore deny reasons.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loader := policy.NewLoader(logger)
//	if err := loader.WatchEngine(ctx, eng, []string{"./policies"}, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := edit.NewEngine(registry, edit.Options{Store: store, Checker: eng})
package policy
