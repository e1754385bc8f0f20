// Package config loads, normalizes, and validates fingerid configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FINGERID_JWT_SECRET and FINGERID_DATABASE_DSN. The Config type centralizes
// every knob the daemon and CLI need: storage location, upload limits, the
// similarity model and binarization subprocesses, and session signing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, derived directories, and clear validation errors.
package config
