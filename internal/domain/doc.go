// Package domain contains the core entities and value objects for propship.
//
// This package is the innermost layer of the application. It has no
// dependencies on infrastructure concerns (network, file system, logging)
// and contains only the rules every other layer agrees on.
//
// # Entities
//
//   - [EntrySet]: filtered key-value data extracted from one source file
//   - [Envelope]: an entry set plus the reserved filename marker, the unit sent over the wire
//   - [Ack]: the terminal success/failure signal for one filename
//
// # Invariants
//
//   - The filename marker is never part of an [EntrySet] produced on the watch path.
//   - A store filename is always passed through [SanitizeFilename] before any
//     path is built from it.
package domain
