// Package extensions provides field contributors which add fields to objects
// of other engines.
//
// Contributors are registered once at startup and run for every request, in
// registration order, after the definition's own fields:
//
//	registry.RegisterExtension(extensions.NewSubscriptions())
package extensions
