// SPDX-License-Identifier: MPL-2.0

// Package datapath discovers and orders the local LHAPDF data directories and
// the sources (local mirrors and network bases) that sets are fetched from.
//
// A Resolver is an explicit context object: nothing in this package keeps
// process-wide state, so independent resolvers can coexist (tests construct
// one per case). A Resolver is not safe for concurrent mutation.
//
// Data path discovery order, where every match is appended:
//  1. $LHAPDF_DATA_PATH, then $LHAPATH
//  2. <prefix>/share/LHAPDF for the current and base installation prefixes,
//     substituting <prefix>/share/LHAPDF/lhapdf when that layout is used
//  3. every path reported by a legacy `lhapdf-config --datadir`
package datapath
