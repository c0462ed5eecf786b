// SPDX-License-Identifier: MPL-2.0

package index

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrComparisonMisuse is returned when a SetRecord is compared with a value
// that is not a SetRecord. It signals a programming error.
var ErrComparisonMisuse = errors.New("comparing a set record to a non-record value")

// SetRecord is the identity of one distributable set as listed in the
// reference index.
type SetRecord struct {
	Name   string
	IDCode int
	// Version is nil for legacy two-column index rows.
	Version *int
}

// NewSetRecord creates a record with a known version.
func NewSetRecord(name string, id, version int) SetRecord {
	return SetRecord{Name: name, IDCode: id, Version: &version}
}

// String returns the set name.
func (r SetRecord) String() string { return r.Name }

// VersionString renders the version, or "-" when the index did not carry one.
func (r SetRecord) VersionString() string {
	if r.Version == nil {
		return "-"
	}
	return strconv.Itoa(*r.Version)
}

// Equal reports whether other names the same set. Records are equal when
// their names match; id and version are ignored. Any value other than a
// SetRecord or a non-nil *SetRecord yields ErrComparisonMisuse.
func (r SetRecord) Equal(other any) (bool, error) {
	switch o := other.(type) {
	case SetRecord:
		return o.Name == r.Name, nil
	case *SetRecord:
		if o != nil {
			return o.Name == r.Name, nil
		}
	}
	return false, fmt.Errorf("%w: %T (%v)", ErrComparisonMisuse, other, other)
}

// Match reports whether the name matches the glob pattern. With exact set,
// the pattern is compared literally.
func (r SetRecord) Match(pattern string, exact bool) bool {
	if exact {
		return r.Name == pattern
	}
	ok, err := doublestar.Match(pattern, r.Name)
	return err == nil && ok
}

// Filter keeps the records whose name matches any of patterns, in input
// order. An empty pattern list keeps every record.
func Filter(records []SetRecord, patterns []string) ([]SetRecord, error) {
	if len(patterns) == 0 {
		return records, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return slices.DeleteFunc(slices.Clone(records), func(r SetRecord) bool {
		return !slices.ContainsFunc(patterns, func(p string) bool { return r.Match(p, false) })
	}), nil
}

// VersionFunc reports the version recorded in an installed set's own
// metadata. ok is false when the metadata does not carry a version.
type VersionFunc func(SetRecord) (version int, ok bool, err error)

// Outdated keeps the records whose index version is strictly newer than the
// installed one. installedVersion is only called for records that carry an
// index version. An installed set without a recorded version is outdated
// whenever the index knows a version for it.
func Outdated(records []SetRecord, installedVersion VersionFunc) ([]SetRecord, error) {
	var out []SetRecord
	for _, r := range records {
		if r.Version == nil {
			continue
		}
		installed, ok, err := installedVersion(r)
		if err != nil {
			return nil, fmt.Errorf("reading installed version of %s: %w", r.Name, err)
		}
		if !ok || *r.Version > installed {
			out = append(out, r)
		}
	}
	return out, nil
}
