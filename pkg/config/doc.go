// Package config defines the service configuration, loaded from YAML
// with environment variable overrides.
//
// The loading sequence is file, then defaults, then PROVOST_* overrides,
// then validation. A missing file is not an error when defaults cover
// everything the caller needs.
package config
