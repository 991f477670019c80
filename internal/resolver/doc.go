// Package resolver turns record groups with unresolved references into
// materialized, persisted records.
//
// The resolver is the heart of seedr. Each record group expands into
// builders that carry raw field data plus pending references. References
// come in two kinds: criteria references, resolved by equality-filtered
// store lookups, and local-id references, resolved against other builders
// in the same batch once those have been materialized.
//
// RESOLUTION ALGORITHM:
//
// Fixpoint loop over an explicit worklist (never recursion):
//  1. Every remaining builder attempts to discharge its pending references.
//  2. Builders whose reference set emptied this pass are built, added to the
//     store session, optionally flushed, and appended to the output.
//  3. A pass that resolves nothing means the remaining references can never
//     be satisfied; the batch fails with an UnresolvedReferencesError.
//
// Flushing after each build is what lets later passes find records created
// earlier in the same batch through criteria lookups. With flushing
// disabled, criteria references to same-batch records simply never match;
// that is caller-controlled behavior, not an error.
//
// The loop is single-threaded and synchronous. An ambiguous criteria match
// aborts the entire batch immediately; records already flushed within the
// call stay in the session and their fate belongs to the caller's
// transaction.
package resolver
