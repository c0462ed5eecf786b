// SPDX-License-Identifier: MPL-2.0

// Package testutil builds on-disk fixtures for tests: reference indexes,
// installed set directories and set archives, plus small Must* helpers that
// fail the test instead of returning errors.
package testutil
