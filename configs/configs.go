// Package configs provides the embedded configuration template written by
// `trenton config init`. Embedding keeps the template available in every
// distribution without install-time file handling.
package configs

import _ "embed"

// ConfigTemplate is the annotated default configuration, written to
// <data-dir>/config.yaml by `trenton config init`.
//
//go:embed config.example.yaml
var ConfigTemplate string
