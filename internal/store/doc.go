// Package store provides SQLite-backed persistence for registered queries,
// user subscriptions and the append-only result ledger.
//
// Tables:
//   - users: identified users, plus the anonymous sentinel (id 0)
//   - queries: one row per distinct (model_id, hash)
//   - subscriptions: one row per (user_id, query_hash) with a resubmission count
//   - results: immutable evaluation results, one row per evaluation
//
// # Identity
//
// A query's hash is ir.HashWithModel over its canonical value. The full
// canonical serialization is stored next to the hash; a registration whose
// hash matches a stored query with different content is rejected as a
// collision instead of being merged.
//
// # Latest and previous
//
// There is no "current result" column. The n-th most recent result per
// (query_hash, checker_type) is computed on read with a window function,
// backed by the idx_results_latest index. Ties on created_at are broken by
// insertion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Register and AppendBatch each run in a single transaction.
package store
