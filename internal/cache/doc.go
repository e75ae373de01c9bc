// Package cache implements the two-tier (memory + disk) cache for convolution
// functions keyed by parallactic angle. Lookups use tolerance-based nearest
// matching over an AngleIndex, a qualifier-keyed MemoryTier holds artifacts
// materialized in this process, and a DiskTier persists one file per depth
// plane plus a plain-text aux.dat index. On load, metadata embedded in the plane
// files overrides whatever the in-memory index held for the same slot.
//
// A Cache is not safe for concurrent use; callers visit orientations from one
// goroutine, and wrappers that fan out (such as the inspection server) must
// serialize access themselves.
package cache
