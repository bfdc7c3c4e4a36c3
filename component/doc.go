// Package component defines the lifecycle contract shared by dbfixture's
// infrastructure pieces, most notably the in-memory database test component.
//
// # Interfaces
//
//   - Component: Start/Stop/Health lifecycle
//   - Describable: one-line self description for test logs
package component
