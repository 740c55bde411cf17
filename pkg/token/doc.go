// Package token generates and checks vos-server admin tokens.
//
// Token format:
//
//   - Prefix: vosk_
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//
// Hash format:
//
//   - Prefix: vosh_
//   - Body: 64 characters of hex-encoded SHA-256 of the whole token
//
// The server configuration may hold either form. Storing the hash keeps
// the token itself out of config files and environment dumps.
package token
