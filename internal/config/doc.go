// Package config loads application configuration from environment
// variables (prefix CSK) merged with an optional YAML file. Environment
// values take precedence over file values, which take precedence over
// built-in defaults.
package config
