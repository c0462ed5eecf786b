// SPDX-License-Identifier: MPL-2.0

// Package index parses the reference index (pdfsets.index) and reconciles it
// with the sets installed on disk.
package index
