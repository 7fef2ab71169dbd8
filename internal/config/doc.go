// Package config loads client configuration from YAML or TOML files with
// environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation, so secrets can stay out of the file.
package config
