// Package localserver serves the admin API on a Unix domain socket.
//
// The socket is for tools on the same host: it carries the same
// /admin/v1 routes as the HTTP listener but skips token and allow-list
// checks. Access is controlled by the socket file mode (0600 by default)
// and the directory it lives in.
package localserver
