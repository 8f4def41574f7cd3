// Package cmd implements the command-line interface for the cask document
// store. It provides a hierarchical command structure with operations for
// running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for document operations (get, insert, upsert, replace,
//     counter, lock, unlock, endure, etc.)
//   - serve: Commands for starting and configuring the cask server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See cask -help for a list of all commands.
package cmd
