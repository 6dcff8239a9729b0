// Package config loads alpha-kite configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing. Binaries load an optional .env file first so credentials can be
// kept out of the YAML.
package config
