// Package model holds the configuration framework domain types - versioned
// configuration layers and the configurations that order them - along with
// the reconciliation that merges a desired layer into a configuration.
package model

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrLayerSpec is returned when a layer is constructed from invalid
	// parameters.
	ErrLayerSpec = errors.New("invalid layer parameters")

	// ErrConfiguration wraps failures while modifying or persisting a
	// configuration, branch resolution included.
	ErrConfiguration = errors.New("configuration error")
)

// SchemaVersion selects the wire schema for layers and configurations. The
// set is closed - v2 and v3 are the only schemas the service speaks.
type SchemaVersion string

const (
	SchemaV2 SchemaVersion = "v2"
	SchemaV3 SchemaVersion = "v3"
)

// SchemaVersions returns the supported configuration schema versions.
func SchemaVersions() []SchemaVersion { return []SchemaVersion{SchemaV2, SchemaV3} }

// JoinWords composes a multi-word field or request parameter key in the
// schema's naming convention - camelCase for v2, snake_case for v3.
func (v SchemaVersion) JoinWords(words ...string) string {
	if v == SchemaV2 {
		var sb strings.Builder
		for i, word := range words {
			if i == 0 {
				sb.WriteString(word)
				continue
			}

			sb.WriteString(strings.ToUpper(word[:1]))
			sb.WriteString(word[1:])
		}

		return sb.String()
	}

	return strings.Join(words, "_")
}

// wire keys that differ between schema versions
func (v SchemaVersion) cloneURLKey() string            { return v.JoinWords("clone", "url") }
func (v SchemaVersion) specialParametersKey() string   { return v.JoinWords("special", "parameters") }
func (v SchemaVersion) requireDkmsKey() string         { return v.JoinWords("require", "dkms") }
func (v SchemaVersion) additionalInventoryKey() string { return v.JoinWords("additional", "inventory") }
func (v SchemaVersion) lastUpdatedKey() string         { return v.JoinWords("last", "updated") }

// LayerKind distinguishes configuration layers, which run a playbook, from
// the singleton additional-inventory layer, which only supplies inventory
// content.
type LayerKind string

const (
	LayerKindConfig    LayerKind = "configuration"
	LayerKindInventory LayerKind = "additional-inventory"
)

// LayerState is the desired presence of a layer in a configuration.
type LayerState string

const (
	LayerStatePresent LayerState = "present"
	LayerStateAbsent  LayerState = "absent"
)

// LayerStates returns the valid desired layer states.
func LayerStates() []LayerState { return []LayerState{LayerStatePresent, LayerStateAbsent} }
