// Package harness runs YAML scenarios against the full query stack.
//
// A scenario publishes model artifacts into an in-memory artifact store,
// then drives a query.Manager backed by a fresh in-memory SQLite ledger
// through a flow of steps:
//
//	submit   register and answer a query for a user
//	publish  replace a model artifact and drop its cached handle
//	sweep    re-answer every registered query of a model
//	report   render the delta report of one query
//
// Each step appends one event to the trace and may carry an expect clause.
// After the flow, assertions check evaluation counts, artifact fetches,
// ledger rows and subscriptions.
//
// Time and sweep run ids are deterministic, so a trace can be compared
// byte for byte against a golden file. See RunWithGolden.
package harness
