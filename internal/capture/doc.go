// Package capture defines the core types, capability interfaces, and domain
// error kinds shared across the capture service subsystems.
package capture
