// Package auth resolves account credentials into live OAuth tokens.
//
// Resolve loads the stored credential for a mailbox, refreshes it against
// the provider's token endpoint when its expiry is inside the safety margin,
// and writes the rotated credential back to the account store. Concurrent
// resolutions for the same address are coalesced so only one refresh runs
// and only one rotated credential is ever persisted.
package auth
