// Package configs embeds the built-in pattern set and the configuration
// templates written by `prometheus config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults (internal/config NewConfig)
//  2. User config (~/.config/prometheus/config.yaml)
//  3. Case config (.prometheus.yaml)
//  4. Environment variables (PROMETHEUS_*)
//  5. Command-line flags
package configs

import _ "embed"

// DefaultPatterns is the pattern set used when no pattern file is given.
//
//go:embed patterns.yaml
var DefaultPatterns []byte

// UserConfigTemplate is written by `prometheus config init` to the user
// config path.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `prometheus config init --project`
// as .prometheus.yaml in the current directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
