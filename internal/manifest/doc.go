// Package manifest defines the typed model of a tool-server registry
// document: server keys mapped to launch specs with a runtime kind, command
// sequence, package identifier, and environment references.
//
// The model preserves unknown document fields verbatim so a compile is a
// faithful transformation of the input rather than a lossy re-serialization.
// Loading and emission live in the parser subpackage.
package manifest
