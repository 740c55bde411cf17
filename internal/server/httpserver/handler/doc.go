// Package handler provides the admin HTTP handlers of vos-server.
//
// Every JSON response uses the Response envelope. Engine errors carry a
// VOS code whose numeric suffix selects the HTTP status.
package handler
