// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema and
// formats CUE errors with the path of the offending field.
//
//	//go:embed config_schema.cue
//	var schema string
//
//	values, err := cueutil.DecodeMap(schema, data, "#Config", "config.cue")
//	if err != nil {
//	    return err // "config.cue: fetch.timeout: conflicting values ..."
//	}
package cueutil
