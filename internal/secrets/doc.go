// Package secrets provides the secret store and pre-flight environment
// validation for the compiler.
//
// The store layers the process environment over an optional dotenv file and
// knows how to recognize placeholder sentinels (values copied from a
// template but never filled in). Validation walks every declared
// environment reference in a registry and reports the unresolved ones
// grouped per server.
package secrets
