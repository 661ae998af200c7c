// Package accounts owns the durable multi-account credential state.
//
// Each authenticated mailbox is represented by a Record keyed by its
// normalized (lowercased) address. The store also tracks a single optional
// default account pointer used when a tool call does not name an account.
// Every mutation is flushed to disk before it returns, via an atomic
// temp-file-and-rename write, so a crash can never surface a partially
// written credential.
package accounts
