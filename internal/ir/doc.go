// Package ir provides the value representation for captured execution data.
//
// Every fact the capture layer records about a running program (argument
// bindings, globals, return values) is converted to a Value before it reaches
// the provenance store. ir imports nothing internal; all other internal
// packages may import it.
//
// Key design constraints:
//   - NO float types (use Int, or a String holding the program's own repr)
//   - Null is a real value (a function returning nothing returns Null)
//   - Canonical JSON (RFC 8785 ordering, NFC strings) is the storage encoding
//   - Query rows keep the column order the database declared
package ir
