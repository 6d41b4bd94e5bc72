// Package billing implements the subscription payment workflow: plan
// catalog, checkout initiation against the payment gateway, the
// subscription ledger, and the idempotent reconciliation routine that
// the redirect callback, the provider webhook, and client polling all
// converge on.
//
// The invariant the package exists to protect: at most one ledger entry
// ever transitions into active per payment reference, and the user
// entitlement update happens in the same transaction as that transition.
package billing
