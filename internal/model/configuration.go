package model

import (
	"encoding/json"
	"os"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Configuration is an ordered list of layers applied to components, plus an
// optional additional-inventory layer, identified by name once saved.
//
// A Configuration is not safe for concurrent mutation; callers follow a
// load, reconcile, save cycle with a single writer.
type Configuration struct {
	Version SchemaVersion
	// Layers in application order.
	Layers []*Layer
	// AdditionalInventory is the singleton inventory-only layer, when set.
	AdditionalInventory *Layer

	name string
	// passthrough carries record fields this client does not model. It
	// never holds the layers, additional-inventory, name or last-updated
	// keys.
	passthrough map[string]any
	changed     bool

	logger *logrus.Entry
}

// NewConfiguration returns an empty configuration with no layers.
func NewConfiguration(version SchemaVersion) *Configuration {
	return &Configuration{Version: version}
}

// ConfigurationFromRecord reconstructs a configuration from its persisted
// record.
func ConfigurationFromRecord(version SchemaVersion, record map[string]any) (*Configuration, error) {
	cfg := NewConfiguration(version)

	data := deepCopyMap(record)
	if data == nil {
		data = map[string]any{}
	}

	cfg.name = popString(data, "name")
	delete(data, version.lastUpdatedKey())

	if rawLayers, ok := data["layers"].([]any); ok {
		for _, rawLayer := range rawLayers {
			layerRecord, ok := rawLayer.(map[string]any)
			if !ok {
				return nil, errors.Wrap(ErrConfiguration, "layer record is not an object")
			}

			layer, err := LayerFromRecord(version, LayerKindConfig, layerRecord)
			if err != nil {
				return nil, errors.Wrap(err, "decoding configuration "+cfg.name)
			}

			cfg.Layers = append(cfg.Layers, layer)
		}
	}

	delete(data, "layers")

	if rawInventory, ok := data[version.additionalInventoryKey()].(map[string]any); ok {
		layer, err := LayerFromRecord(version, LayerKindInventory, rawInventory)
		if err != nil {
			return nil, errors.Wrap(err, "decoding configuration "+cfg.name)
		}

		cfg.AdditionalInventory = layer
	}

	delete(data, version.additionalInventoryKey())

	if len(data) > 0 {
		cfg.passthrough = data
	}

	return cfg, nil
}

// Name returns the configuration name, empty until first saved.
func (c *Configuration) Name() string { return c.name }

// Changed reports whether reconciliation modified the layer list since the
// configuration was loaded.
func (c *Configuration) Changed() bool { return c.changed }

// SetLogger directs reconciliation decision logging to the given entry.
func (c *Configuration) SetLogger(logger *logrus.Entry) { c.logger = logger }

func (c *Configuration) log() *logrus.Entry {
	if c.logger != nil {
		return c.logger
	}

	return logrus.NewEntry(logrus.StandardLogger())
}

// MarshalRecord renders the configuration in its schema's wire form,
// carrying passthrough fields along verbatim.
func (c *Configuration) MarshalRecord() map[string]any {
	record := deepCopyMap(c.passthrough)
	if record == nil {
		record = map[string]any{}
	}

	if c.name != "" {
		record["name"] = c.name
	}

	layers := make([]any, 0, len(c.Layers))
	for _, layer := range c.Layers {
		layers = append(layers, layer.MarshalRecord())
	}

	record["layers"] = layers

	if c.AdditionalInventory != nil {
		record[c.Version.additionalInventoryKey()] = c.AdditionalInventory.MarshalRecord()
	}

	return record
}

// EnsureLayer reconciles the layer list with the desired layer - one pass,
// idempotent. Present replaces every matching layer with desired, carrying
// the matched layer's additional data over, or appends desired when nothing
// matches. Absent drops matching layers. Non-matching layers keep their
// order; an appended layer lands at the end.
func (c *Configuration) EnsureLayer(desired *Layer, state LayerState) {
	// changed reports on this call only, so an ensure that is already
	// satisfied reads as a no-op even after an earlier modifying call.
	c.changed = false

	action := "removing"
	if state == LayerStatePresent {
		action = "updating"
	}

	newLayers := make([]*Layer, 0, len(c.Layers)+1)
	foundMatch := false

	for _, existing := range c.Layers {
		if !desired.Matches(existing) {
			newLayers = append(newLayers, existing)
			continue
		}

		foundMatch = true
		c.log().WithField("layer", existing.String()).Info(action + " existing layer")

		if state == LayerStateAbsent {
			c.changed = true
			continue
		}

		if updated := existing.UpdatedValues(desired); len(updated) > 0 {
			c.changed = true

			for field, change := range updated {
				c.log().WithFields(logrus.Fields{
					"layer": existing.String(),
					"field": field,
					"old":   change.Old,
					"new":   change.New,
				}).Info("layer field updated")
			}
		}

		if len(existing.AdditionalData) > 0 {
			desired.AdditionalData = deepCopyMap(existing.AdditionalData)
		}

		newLayers = append(newLayers, desired)
	}

	if !foundMatch {
		c.log().WithField("layer", desired.String()).Info("no matching layer found")

		if state == LayerStatePresent {
			c.log().WithField("layer", desired.String()).Info("appending layer")
			c.changed = true

			newLayers = append(newLayers, desired)
		}
	}

	c.Layers = newLayers

	if !c.changed {
		c.log().WithField("configuration", c.name).Info("no configuration changes necessary")
	}
}

// SetAdditionalInventory replaces the singleton additional-inventory layer,
// removing it when layer is nil.
func (c *Configuration) SetAdditionalInventory(layer *Layer) {
	c.changed = false

	if c.AdditionalInventory == nil && layer == nil {
		c.log().WithField("configuration", c.name).Info("no configuration changes necessary")

		return
	}

	if c.AdditionalInventory != nil && layer != nil {
		if updated := c.AdditionalInventory.UpdatedValues(layer); len(updated) == 0 {
			c.log().WithField("configuration", c.name).Info("no configuration changes necessary")

			return
		}

		if len(c.AdditionalInventory.AdditionalData) > 0 {
			layer.AdditionalData = deepCopyMap(c.AdditionalInventory.AdditionalData)
		}
	}

	c.AdditionalInventory = layer
	c.changed = true
}

// SaveToFile writes the configuration record as indented JSON. With
// overwrite disabled an existing file is an error.
func (c *Configuration) SaveToFile(filePath string, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrap(ErrConfiguration,
				"configuration at "+filePath+" already exists and will not be overwritten")
		}

		return errors.Wrap(ErrConfiguration, "failed to write configuration to "+filePath+": "+err.Error())
	}

	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c.MarshalRecord()); err != nil {
		return errors.Wrap(ErrConfiguration, "failed to write configuration to "+filePath+": "+err.Error())
	}

	return nil
}

// deepCopyMap copies a decoded JSON object so mutations on the copy cannot
// alias the source. Returns nil for an empty source.
func deepCopyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}

	dst := map[string]any{}
	if err := copier.CopyWithOption(&dst, src, copier.Option{DeepCopy: true}); err != nil {
		for k, v := range src {
			dst[k] = v
		}
	}

	return dst
}
