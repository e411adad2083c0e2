// Package config loads and validates the gateway configuration.
//
// Configuration comes from three layers, later layers overriding earlier ones:
//
//  1. Hardcoded defaults (the gateway runs with zero configuration)
//  2. A YAML file (default: configs/config.yaml)
//  3. SYNCGATE_* environment variables
//
// The documented defaults for the backend are kind "sqlite", name "syncgate"
// and host "localhost"; the API binds 0.0.0.0:8080.
package config
