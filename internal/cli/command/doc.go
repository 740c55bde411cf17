// Package command provides the vos-cli command tree.
//
// Pool commands work offline against the data directory of a stopped
// vos-server: each invocation opens the store, opens the pool, performs
// one operation and closes everything again. Commands under "remote"
// talk to a running server through its admin API instead.
package command
