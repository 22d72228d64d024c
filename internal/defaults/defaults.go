// Package defaults bundles the starter files written by "nimbus init".
package defaults

import _ "embed"

// ConfigYAML is the annotated starter configuration.
//
//go:embed config.yaml
var ConfigYAML []byte
