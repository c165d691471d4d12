// Package query answers standing queries against models.
//
// A Manager registers queries in the ledger, reuses saved answers where they
// exist, evaluates the rest against model handles from the cache, and
// persists new results. Sweeps re-answer every registered query of one model
// and classify each fresh result against the one before it.
package query
