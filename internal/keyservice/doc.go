// Package keyservice orchestrates license key issuance, validation, and
// consumption for the download page.
//
// Issuance walks CheckingQuota -> Deriving -> Persisting -> Logged, failing
// fast from any state with a typed reason. Validation walks FormatCheck ->
// IntegrityCheck -> RemoteLookup -> Decision. The remote ledger is
// authoritative for key existence and usage; the local store is an audit
// trail and the home of the legacy offline scheme.
//
// Every public operation returns a structured result instead of a bare
// error so callers can surface a user-facing decision directly.
package keyservice
