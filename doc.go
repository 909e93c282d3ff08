// Package querycache is a client-side query cache with optimistic mutations.
// Reads go through a Store keyed by hierarchical Keys; concurrent reads of one
// key share a single fetch, and fetches that are superseded (by a refetch,
// cancellation or removal) never write their result.
//
// Components:
//   - Store: per-key status index in memory; values framed in a Provider
//     (Ristretto, BigCache, Redis).
//   - Client: the query controller (Fetch, Query, Refetch, SetQueryData,
//     InvalidateQueries, CancelQueries).
//   - Mutation: write-then-reconcile with OnBeforeCommit / OnFailure /
//     OnSettled hooks for optimistic edits and rollback.
//   - GenStore: generation counter per key. A fetch records the generation
//     it started under and may only write while it is unchanged.
//
// Keys:
//
//	["posts", "u1"]        - posts of one user
//	["users", 0, 100]      - one page of users
//
// Optimistic delete:
//
//	_ = c.CancelQueries(ctx, key)
//	snap, _ := c.Store().Snapshot(ctx, key)
//	_, _ = SetQueryData(ctx, c, key, cd, drop(id))
//	// network call; on failure the snapshot is restored
package querycache
