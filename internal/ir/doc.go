// Package ir provides the shared value types for vigil: queries, entities,
// result payloads, and the identity scheme that ties a query to a model.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A query's identity is its content: HashWithModel over the canonical
//     identity string, never a sequence allocated by the store.
//   - The identity string is order-independent. Map entries and list elements
//     are sorted by their own canonical form, so re-ordered but equal input
//     hashes identically.
//   - Only strings, numbers, maps and lists may appear in a hashed value.
//     Anything else is an UnsupportedValueTypeError, never coerced.
//   - Stored JSON (MarshalCanonical) is a separate serialization with sorted
//     keys and NFC-normalized strings. It is for storage and display, not
//     identity.
//   - All JSON tags use snake_case, except the selection keys the web layer
//     already speaks.
package ir
