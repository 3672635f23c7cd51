// Package configs provides embedded configuration templates.
//
// The templates are embedded at build time so they ship with every
// distribution of the binary. `cartrita-hub init` writes the project
// template to .cartrita-hub.yaml; `cartrita-hub init --user` writes the
// user template to ~/.config/cartrita-hub/config.yaml.
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/cartrita-hub/config.yaml)
//  3. Project config (.cartrita-hub.yaml)
//  4. Environment variables (CARTRITAHUB_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the starter project configuration, including the
// model tag registry and hybrid search weights.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is the starter machine-level configuration: data
// directory, cache sizing, and log destination.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
