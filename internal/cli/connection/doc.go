// Package connection provides the vos-server admin API client used by
// the "vos-cli remote" commands.
//
// Responses arrive in the server envelope {code, message, data}; errors
// are returned as *APIError carrying the server's VOS code.
package connection
