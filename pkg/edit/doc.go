// Package edit provides the generic edit engine: a pluggable workflow for
// creating and editing domain objects through web forms, HTTP parameters,
// comments and RPC batches.
//
// # Overview
//
// Domain object types implement Definition and are registered in a Registry
// under a stable engine key. For every request the Engine:
//
//  1. Resolves the target object through a Resolver, or instantiates a blank
//     object when creating
//  2. Resolves the applicable Configuration (form variant)
//  3. Builds a FieldSet from the definition, registered FieldContributors and
//     the core comment field
//  4. Reads submitted input into the fields and turns them into an ordered
//     list of MutationRecords
//  5. Hands the records to the Editor, which validates them all, drops
//     no-ops and persists the object and its transactions atomically
//
// # Outcomes
//
// Entry points never return expected failures as errors. They return an
// Outcome which is one of *Saved, *Invalid, *NoEffect, *Rejected or
// *Documentation. The error return is reserved for configuration defects and
// infrastructure failures:
//
//	out, err := engine.SubmitRPC(ctx, viewer, "tasks.task", edit.RPCRequest{
//	    Transactions: []edit.RPCTransaction{{Type: "task:title", Value: "Hello"}},
//	})
//	if err != nil {
//	    return err
//	}
//	switch o := out.(type) {
//	case *edit.Saved:
//	    fmt.Println(o.RPCResponse().Object.ID)
//	case *edit.Invalid:
//	    for _, fe := range o.Errors {
//	        fmt.Println(fe.Type, fe.Message)
//	    }
//	}
//
// # Identifiers
//
// Objects are addressed by local numeric id ("42"), global id
// ("PHID-TASK-..."), or short name ("T42"). Missing objects and denied
// capabilities are indistinguishable to callers.
package edit
