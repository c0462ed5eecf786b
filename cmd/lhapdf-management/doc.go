// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for lhapdf-management.
//
// This package implements the Cobra command hierarchy: list, show, update,
// install and upgrade over the set-distribution engine, and config for the
// configuration file. Every command builds its resolver, fetcher and
// installer through App, so tests can inject configuration and output.
package cmd
