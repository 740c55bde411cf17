// Package buildinfo provides build information for vos-server and vos-cli.
//
// Version, commit and build time are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/vos-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Values left unset fall back to what the Go toolchain recorded in the
// binary (module version, vcs.revision, vcs.time).
package buildinfo
