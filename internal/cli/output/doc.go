// Package output provides output formatting for vos-cli.
//
// Every command result goes through a Formatter:
//
//   - table: aligned columns, one row per slice element or one row per
//     field of a struct, headers taken from json tags
//   - json: indented JSON
//   - yaml: YAML with the same field names as the JSON form
//
// Byte sizes render human readable in tables through FormatBytes.
package output
