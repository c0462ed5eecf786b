// SPDX-License-Identifier: MPL-2.0

// Package fetch realizes a named item (a set archive or the reference index)
// in a destination directory by trying an ordered list of sources until one
// succeeds.
//
// The package is organized into four concerns:
//   - fetch.go: Fetcher, the per-source fallback loop and error aggregation
//   - transport.go: local-file, HTTP and S3 transports behind one interface
//   - progress.go: progress reporting hooks and byte-size formatting
//   - ratelimit.go: optional bandwidth limiting of transfers
//
// Sources without a network host are local directories and are copied from
// directly. Anything else is a base locator: the item name is appended to it
// verbatim to form the retrieval locator.
package fetch
