// Package sync merges broker snapshots into a tenant's persisted instances.
//
// # Core Interface
//
//   - Reconciler: one reconciliation pass for one tenant
//
// # Reconciliation Steps
//
// Reconcile runs the following steps in order:
//
//  1. Tenant filter. Each snapshot's tenant is resolved from the instance's
//     tenantId, then metadata.tenantId, then metadata.tenant_id. Snapshots with
//     no tenant, or another tenant, are dropped and counted as missing-tenant
//     or mismatched-tenant.
//  2. Trust gate. A snapshot that would create a new row is kept only if it
//     carries a non-default origin, declares a tenant binding, or names an id
//     already known for the tenant. Everything else is dropped as
//     untrusted-snapshot. Snapshots matching an existing row skip this gate.
//  3. Action resolution. A snapshot matching a row by id or broker id is an
//     update. A new id with an archive marker is skipped. Anything else is a
//     create.
//  4. Field derivation. Status, connectivity, phone, lastSeenAt and display
//     name are derived from the snapshot and the previous row, and one
//     history entry is appended.
//  5. Persistence. Rows are written, the tenant's rows are re-read and a
//     sync event is emitted.
//
// # Coordinator Package
//
// The sync/coordinator subpackage decides when to reconcile, serializes
// refreshes per tenant, and drives the snapshot cache. See
// internal/sync/coordinator for details.
package sync
