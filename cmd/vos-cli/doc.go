// Package main provides the entry point for vos-cli.
//
// vos-cli works on a pool directory directly (pool, cont, epoch, obj,
// snap, discard) or talks to a running vos-server through its admin
// API (remote). Run "vos-cli shell" for an interactive session.
package main
