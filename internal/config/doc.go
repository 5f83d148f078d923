// Package config loads and validates ingot's TOML runtime configuration
// and derives every filesystem path the pipeline touches from the single
// configured root.
package config
