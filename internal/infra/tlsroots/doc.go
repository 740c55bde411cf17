// Package tlsroots loads the certificates of the admin API.
//
// The server side keeps its key pair in a Reloader that swaps in the new
// pair when the files change on disk, so certificates rotate without a
// restart. The client side builds a tls.Config that trusts the system
// roots plus any CA bundle given on the command line.
package tlsroots
