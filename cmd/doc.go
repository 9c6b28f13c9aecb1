// Package cmd implements the command-line interface of psync. It provides a
// hierarchical command structure for running an instance and for talking to
// a running one.
//
// The package is organized into several subpackages:
//
//   - serve: Starts an instance (discovery, election, sync API)
//   - sync: Client commands (discover, data, merge, pull, conflicts, resolve, status)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See psync -help for a list of all commands.
package cmd
