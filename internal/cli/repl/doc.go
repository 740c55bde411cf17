// Package repl provides the interactive mode of vos-cli.
//
//   - repl.go: the read-eval-print loop and line splitting
//   - completer.go: command prefix completion
//   - history.go: command history persistence
//
// Each line is split into arguments and handed to an Executor; the shell
// command runs them through a fresh vos-cli application.
package repl
