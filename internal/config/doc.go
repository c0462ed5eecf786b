// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/lhapdf-management/config.cue (or the XDG
// equivalent on Linux, ~/Library/Application Support/lhapdf-management/config.cue on
// macOS, %APPDATA%\lhapdf-management\config.cue on Windows). It covers the data and
// index directories, extra sources, the two default source bases, network fetch
// settings, S3 credentials and UI preferences.
//
// Configuration files are validated against the embedded CUE schema
// (config_schema.cue). LHAPDF_CVMFSBASE and LHAPDF_URLBASE override the source
// bases, and LHAPDF_S3_ACCESS_KEY / LHAPDF_S3_SECRET_KEY override the S3 keys.
package config
