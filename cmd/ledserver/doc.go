// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the ledserver CLI.
//
// The root command is built by NewRootCommand around an App, which carries
// the configuration provider, the filesystem used for snapshots and the
// output streams so tests can substitute each of them.
package cmd
